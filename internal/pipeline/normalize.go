package pipeline

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/editais-cli/internal/model"
)

// DisplayLayout is the pt-BR timestamp format used for display and export.
const DisplayLayout = "02/01/2006 15:04"

// saoPaulo is the zone for upstream timestamps that carry no offset.
var saoPaulo = loadZone("America/Sao_Paulo", -3*60*60)

func loadZone(name string, offset int) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("BRT", offset)
	}
	return loc
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// fieldRule maps one Record field to its upstream source keys, in priority
// order. The first non-empty value wins.
type fieldRule struct {
	keys []string
	set  func(r *model.Record, v string)
}

var fieldRules = []fieldRule{
	{[]string{"municipio_nome", "municipioNome", "cidade", "municipio"}, func(r *model.Record, v string) { r.City = v }},
	{[]string{"uf", "ufSigla", "sigla_uf", "estado"}, func(r *model.Record, v string) { r.RegionCode = strings.ToUpper(v) }},
	{titleKeys, func(r *model.Record, v string) { r.Title = v }},
	{[]string{"description", "objeto", "objetoCompra", "descricao"}, func(r *model.Record, v string) { r.Description = v }},
	{[]string{"modalidade_licitacao_nome", "modalidadeNome", "modalidade"}, func(r *model.Record, v string) { r.ProcurementModality = v }},
	{[]string{"tipo_nome", "tipoNome", "tipo"}, func(r *model.Record, v string) { r.Kind = v }},
	{[]string{"document_type", "tipo_documento", "tipoDocumento"}, func(r *model.Record, v string) { r.DocumentType = v }},
	{issuingBodyKeys, func(r *model.Record, v string) { r.IssuingBody = v }},
	{[]string{"unidade_nome", "unidadeNome", "unidade"}, func(r *model.Record, v string) { r.IssuingUnit = v }},
	{[]string{"esfera_nome", "esferaNome", "esfera"}, func(r *model.Record, v string) { r.GovernmentTier = v }},
	{[]string{"numeroProcesso", "numero_processo", "processo"}, func(r *model.Record, v string) { r.ProcessNumber = v }},
	{[]string{"situacao_nome", "situacaoNome", "status", "situacao"}, func(r *model.Record, v string) { r.StatusLabel = v }},
	{controlKeys, func(r *model.Record, v string) { r.ControlNumber = v }},
}

var (
	titleKeys       = []string{"title", "titulo"}
	issuingBodyKeys = []string{"orgao_nome", "orgaoNome", "orgao", "razaoSocial"}
	controlKeys     = []string{"numero_controle_pncp", "numeroControlePNCP"}
	publishedKeys   = []string{"data_publicacao_pncp", "data", "dataPublicacao", "dataPublicacaoPncp", "createdAt"}
	deadlineKeys    = []string{"data_fim_vigencia", "dataEncerramentoProposta", "data_encerramento_proposta"}
	valueKeys       = []string{"valor_global", "valorTotalEstimado", "valor_estimado", "valorEstimado"}
)

// Normalize maps a raw upstream item onto a Record. It never fails: missing
// or malformed fields come out empty (or nil for the estimated value).
func Normalize(item model.RawItem, shardKey, origin string) model.Record {
	rec := model.Record{SourceMunicipalityCode: shardKey}

	for _, rule := range fieldRules {
		if v := firstString(item, rule.keys...); v != "" {
			rule.set(&rec, v)
		}
	}

	if t, ok := ParseTimestamp(firstString(item, publishedKeys...)); ok {
		rec.Published = t
		rec.PublishedAt = t.In(saoPaulo).Format(DisplayLayout)
	}
	if t, ok := ParseTimestamp(firstString(item, deadlineKeys...)); ok {
		rec.ProposalDeadline = t.In(saoPaulo).Format(DisplayLayout)
	}

	for _, key := range valueKeys {
		if v, ok := ParseCurrency(item[key]); ok {
			rec.EstimatedValue = &v
			break
		}
	}

	rec.DetailURL = ResolveLink(item, origin)
	return rec
}

// firstString returns the first key whose value stringifies to a non-empty string.
func firstString(item model.RawItem, keys ...string) string {
	for _, k := range keys {
		if s := stringify(item[k]); s != "" {
			return s
		}
	}
	return ""
}

// stringify renders scalar JSON values as text. Objects, arrays and nulls
// are treated as absent.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// ParseTimestamp parses the timestamp formats seen upstream. Values without
// an offset are read in America/Sao_Paulo.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, saoPaulo); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseCurrency reads a monetary amount from a JSON number or a string in
// either plain ("1234.56") or pt-BR ("R$ 1.234,56") notation.
func ParseCurrency(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		parsed, ok := parseCurrencyString(x)
		if !ok {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseCurrencyString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return 0, false
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1, dotThousands(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// dotThousands reports whether s is a pt-BR integer with a single thousands
// dot, as in "1.234" or "150.000".
func dotThousands(s string) bool {
	intPart, frac, ok := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	if !ok || len(frac) != 3 || len(intPart) == 0 || len(intPart) > 3 || intPart[0] == '0' {
		return false
	}
	return isDigits(intPart) && isDigits(frac)
}
