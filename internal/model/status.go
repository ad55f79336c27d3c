package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StatusBucket is a coarse procurement lifecycle stage.
type StatusBucket string

const (
	BucketOpen    StatusBucket = "open"
	BucketJudging StatusBucket = "judging"
	BucketClosed  StatusBucket = "closed"
	BucketAll     StatusBucket = "all"
	BucketUnknown StatusBucket = "unknown"
)

// Status labels offered to users. The first one is the default.
const (
	StatusLabelOpen    = "A Receber/Recebendo Proposta"
	StatusLabelJudging = "Em Julgamento/Propostas Encerradas"
	StatusLabelClosed  = "Encerradas"
	StatusLabelAll     = "Todos"
)

// StatusOption ties a user-facing label to the PNCP query value and bucket.
type StatusOption struct {
	Label    string
	APIValue string
	Bucket   StatusBucket
}

var statusOptions = []StatusOption{
	{Label: StatusLabelOpen, APIValue: "recebendo_proposta", Bucket: BucketOpen},
	{Label: StatusLabelJudging, APIValue: "em_julgamento", Bucket: BucketJudging},
	{Label: StatusLabelClosed, APIValue: "encerrado", Bucket: BucketClosed},
	{Label: StatusLabelAll, APIValue: "", Bucket: BucketAll},
}

// StatusOptions returns the supported status labels in display order.
func StatusOptions() []StatusOption {
	out := make([]StatusOption, len(statusOptions))
	copy(out, statusOptions)
	return out
}

// LookupStatus finds the option for a label, bucket name or API value.
// An empty input maps to the default (open for proposals).
func LookupStatus(s string) (StatusOption, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return statusOptions[0], true
	}
	for _, o := range statusOptions {
		if strings.EqualFold(s, o.Label) || strings.EqualFold(s, string(o.Bucket)) {
			return o, true
		}
		if o.APIValue != "" && strings.EqualFold(s, o.APIValue) {
			return o, true
		}
	}
	return StatusOption{}, false
}

var bucketHints = []struct {
	bucket StatusBucket
	subs   []string
}{
	{BucketJudging, []string{"julgament"}},
	{BucketClosed, []string{"encerrad", "homologad", "revogad", "anulad", "fracassad", "desert", "suspens"}},
	{BucketOpen, []string{"receb", "abert", "divulgad"}},
}

// ClassifyStatus maps a free-text upstream status label to a bucket using
// substring hints. It is approximate: upstream wording is not stable, and
// anything unrecognised is BucketUnknown.
func ClassifyStatus(label string) StatusBucket {
	l := Fold(label)
	if l == "" {
		return BucketUnknown
	}
	for _, h := range bucketHints {
		for _, s := range h.subs {
			if strings.Contains(l, s) {
				return h.bucket
			}
		}
	}
	return BucketUnknown
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritics.
func Fold(s string) string {
	out, _, err := transform.String(foldAccents, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
