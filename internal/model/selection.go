package model

// Selection is a municipality chosen for a search, already resolved to its
// PNCP location code.
type Selection struct {
	Code string `json:"codigo_pncp" yaml:"codigo_pncp"`
	Name string `json:"nome" yaml:"nome"`
	UF   string `json:"uf" yaml:"uf"`
}

// Label renders the selection as "Nome / UF (code)".
func (s Selection) Label() string {
	if s.UF == "" {
		return s.Name + " (" + s.Code + ")"
	}
	return s.Name + " / " + s.UF + " (" + s.Code + ")"
}

// Filters are the search inputs other than the municipality list.
type Filters struct {
	Keyword     string `json:"palavra_chave" yaml:"palavra_chave"`
	StatusLabel string `json:"status_label" yaml:"status_label"`
	UF          string `json:"uf" yaml:"uf"`
}

// SavedSearch is a named preset. The JSON shape matches the saved_searches.json
// file written by earlier releases.
type SavedSearch struct {
	Name        string      `json:"-" yaml:"name"`
	Keyword     string      `json:"palavra_chave" yaml:"palavra_chave"`
	StatusLabel string      `json:"status_label" yaml:"status_label"`
	UF          string      `json:"uf" yaml:"uf"`
	Selections  []Selection `json:"municipios" yaml:"municipios"`
}

// Filters returns the preset's filter part.
func (s SavedSearch) Filters() Filters {
	return Filters{Keyword: s.Keyword, StatusLabel: s.StatusLabel, UF: s.UF}
}
