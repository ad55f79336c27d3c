package pipeline

import (
	"strings"

	"github.com/sells-group/editais-cli/internal/model"
)

var (
	cnpjKeys     = []string{"orgao_cnpj", "orgaoCnpj", "cnpj"}
	yearKeys     = []string{"ano", "anoCompra"}
	sequenceKeys = []string{"numero_sequencial", "sequencialCompra"}
	urlKeys      = []string{"item_url", "url"}
)

// ResolveLink derives the public detail-page URL for an item. Structured
// identifiers (CNPJ, year, sequence) take precedence over any raw URL field.
// It returns "" when neither is usable.
func ResolveLink(item model.RawItem, origin string) string {
	origin = strings.TrimRight(origin, "/")

	cnpj := digitsOnly(firstString(item, cnpjKeys...))
	year := firstString(item, yearKeys...)
	seq := firstString(item, sequenceKeys...)
	if len(cnpj) == 14 && len(year) == 4 && isDigits(year) && seq != "" {
		return origin + "/app/editais/" + cnpj + "/" + year + "/" + seq
	}

	raw := firstString(item, urlKeys...)
	if raw == "" {
		return ""
	}
	u := absoluteURL(raw, origin)
	u = strings.ReplaceAll(u, "/app/compras/", "/app/editais/")
	u = strings.ReplaceAll(u, "/compras/", "/app/editais/")
	return u
}

func absoluteURL(raw, origin string) string {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	return origin + "/" + strings.TrimLeft(raw, "/")
}

// digitsOnly strips CNPJ punctuation ("12.345.678/0001-95").
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '/' || r == '-' || r == ' ':
		default:
			return ""
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
