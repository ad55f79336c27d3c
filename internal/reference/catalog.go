package reference

import (
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/rotisserie/eris"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sells-group/editais-cli/internal/model"
)

// ErrMunicipioNotFound is wrapped by NotFoundError.
var ErrMunicipioNotFound = eris.New("reference: municipality not found")

// suggestionThreshold is the minimum Jaro-Winkler similarity for a
// "did you mean" suggestion.
const suggestionThreshold = 0.85

// NotFoundError reports an unresolvable name with close matches.
type NotFoundError struct {
	Name        string
	UF          string
	Suggestions []Municipio
}

func (e *NotFoundError) Error() string {
	where := ""
	if e.UF != "" {
		where = "/" + e.UF
	}
	msg := fmt.Sprintf("reference: municipality %q%s not found in the PNCP table", e.Name, where)
	if len(e.Suggestions) > 0 {
		names := make([]string, len(e.Suggestions))
		for i, s := range e.Suggestions {
			names[i] = s.Name + "/" + s.UF
		}
		msg += "; did you mean " + strings.Join(names, ", ") + "?"
	}
	return msg
}

func (e *NotFoundError) Unwrap() error {
	return ErrMunicipioNotFound
}

// Catalog resolves municipality names to PNCP codes.
type Catalog struct {
	municipios []Municipio
	byKey      map[string][]int
	byCode     map[string]int
	ibge       []IBGEEntry
}

// NewCatalog indexes the PNCP table. When a PNCP row has no UF and the IBGE
// catalog knows exactly one state for that name, the UF is filled in.
func NewCatalog(municipios []Municipio, ibge []IBGEEntry) *Catalog {
	ibgeUFs := make(map[string][]string)
	for _, e := range ibge {
		ibgeUFs[e.key] = append(ibgeUFs[e.key], e.UF)
	}

	c := &Catalog{
		municipios: make([]Municipio, len(municipios)),
		byKey:      make(map[string][]int),
		byCode:     make(map[string]int),
		ibge:       ibge,
	}
	for i, m := range municipios {
		if m.key == "" {
			m.key = Key(m.Name)
		}
		if m.UF == "" {
			if ufs := ibgeUFs[m.key]; len(ufs) == 1 {
				m.UF = ufs[0]
			}
		}
		c.municipios[i] = m
		c.byKey[m.key] = append(c.byKey[m.key], i)
		if _, dup := c.byCode[m.Code]; !dup {
			c.byCode[m.Code] = i
		}
	}
	return c
}

// Len returns the number of PNCP municipalities.
func (c *Catalog) Len() int {
	return len(c.municipios)
}

// Resolve finds the municipality for a name. Matches within the given UF
// are preferred; otherwise the first match in any state is used.
func (c *Catalog) Resolve(name, uf string) (model.Selection, error) {
	key := Key(name)
	uf = NormalizeUF(uf)
	if key == "" {
		return model.Selection{}, eris.New("reference: empty municipality name")
	}

	idx := c.byKey[key]
	if uf != "" {
		for _, i := range idx {
			if c.municipios[i].UF == uf {
				return c.municipios[i].Selection(), nil
			}
		}
	}
	if len(idx) > 0 {
		return c.municipios[idx[0]].Selection(), nil
	}
	return model.Selection{}, &NotFoundError{Name: name, UF: uf, Suggestions: c.Suggest(name, uf, 3)}
}

// ResolveSpec resolves user input: a bare PNCP code, "Nome/UF", "Nome - UF"
// or a plain name. defaultUF applies when the input carries no state.
func (c *Catalog) ResolveSpec(spec, defaultUF string) (model.Selection, error) {
	spec = strings.TrimSpace(spec)
	if isDigits(spec) {
		if m, ok := c.ByCode(spec); ok {
			return m.Selection(), nil
		}
	}
	name, uf := SplitNameUF(spec)
	if uf == "" {
		uf = defaultUF
	}
	return c.Resolve(name, uf)
}

// ByCode looks up a municipality by its PNCP code.
func (c *Catalog) ByCode(code string) (Municipio, bool) {
	i, ok := c.byCode[strings.TrimSpace(code)]
	if !ok {
		return Municipio{}, false
	}
	return c.municipios[i], true
}

// Suggest returns up to n municipalities whose folded names are closest to
// name, restricted to uf when one is given.
func (c *Catalog) Suggest(name, uf string, n int) []Municipio {
	key := strings.ReplaceAll(Key(name), "_", " ")
	uf = NormalizeUF(uf)
	if key == "" || n <= 0 {
		return nil
	}

	type scored struct {
		m     Municipio
		score float64
	}
	var candidates []scored
	for _, m := range c.municipios {
		if uf != "" && m.UF != uf {
			continue
		}
		score := matchr.JaroWinkler(key, strings.ReplaceAll(m.key, "_", " "), false)
		if score >= suggestionThreshold {
			candidates = append(candidates, scored{m, score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]Municipio, len(candidates))
	for i, s := range candidates {
		out[i] = s.m
	}
	return out
}

// UFs returns the known state codes in alphabetical order.
func (c *Catalog) UFs() []string {
	set := make(map[string]bool)
	for _, e := range c.ibge {
		set[e.UF] = true
	}
	for _, m := range c.municipios {
		if m.UF != "" {
			set[m.UF] = true
		}
	}
	out := make([]string, 0, len(set))
	for uf := range set {
		out = append(out, uf)
	}
	sort.Strings(out)
	return out
}

// List returns the PNCP municipalities of a state (all when uf is empty),
// sorted by name with Portuguese collation.
func (c *Catalog) List(uf string) []Municipio {
	uf = NormalizeUF(uf)
	var out []Municipio
	for _, m := range c.municipios {
		if uf == "" || m.UF == uf {
			out = append(out, m)
		}
	}
	col := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	sort.SliceStable(out, func(i, j int) bool {
		if d := col.CompareString(out[i].Name, out[j].Name); d != 0 {
			return d < 0
		}
		return out[i].UF < out[j].UF
	})
	return out
}

// Selection converts m into a search selection.
func (m Municipio) Selection() model.Selection {
	return model.Selection{Code: m.Code, Name: m.Name, UF: m.UF}
}
