package pipeline

import (
	"sort"
	"strings"

	"github.com/sells-group/editais-cli/internal/model"
)

// FilterAndSort applies the keyword and status filters and orders the result
// newest first. Records whose status cannot be classified are kept for every
// bucket since the server already filtered by status. Records without a
// publication time sort last in their original order. The input is not modified.
func FilterAndSort(records []model.Record, keyword string, bucket model.StatusBucket) []model.Record {
	kw := model.Fold(keyword)

	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if kw != "" && !strings.Contains(model.Fold(r.Title+" "+r.Description), kw) {
			continue
		}
		if !matchesBucket(r.StatusLabel, bucket) {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].Published, out[j].Published
		if ti.IsZero() || tj.IsZero() {
			return !ti.IsZero() && tj.IsZero()
		}
		return ti.After(tj)
	})
	return out
}

func matchesBucket(label string, bucket model.StatusBucket) bool {
	if bucket == "" || bucket == model.BucketAll {
		return true
	}
	got := model.ClassifyStatus(label)
	return got == model.BucketUnknown || got == bucket
}
