package reference

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/editais-cli/internal/fetcher"
)

// DefaultIBGEURL lists every municipality with its state.
const DefaultIBGEURL = "https://servicodados.ibge.gov.br/api/v1/localidades/municipios"

type ibgeUF struct {
	Sigla string `json:"sigla"`
}

// ibgeAPIMunicipio is one element of the IBGE localidades response. Newer
// municipalities have no microrregiao and carry the state under
// regiao-imediata instead.
type ibgeAPIMunicipio struct {
	ID           int    `json:"id"`
	Nome         string `json:"nome"`
	Microrregiao *struct {
		Mesorregiao struct {
			UF ibgeUF `json:"UF"`
		} `json:"mesorregiao"`
	} `json:"microrregiao"`
	RegiaoImediata *struct {
		RegiaoIntermediaria struct {
			UF ibgeUF `json:"UF"`
		} `json:"regiao-intermediaria"`
	} `json:"regiao-imediata"`
}

func (m ibgeAPIMunicipio) uf() string {
	if m.Microrregiao != nil && m.Microrregiao.Mesorregiao.UF.Sigla != "" {
		return m.Microrregiao.Mesorregiao.UF.Sigla
	}
	if m.RegiaoImediata != nil {
		return m.RegiaoImediata.RegiaoIntermediaria.UF.Sigla
	}
	return ""
}

// ReadIBGEAPI decodes the IBGE localidades JSON array.
func ReadIBGEAPI(ctx context.Context, r io.Reader) ([]IBGEEntry, error) {
	ch, errCh := fetcher.DecodeJSONArray[ibgeAPIMunicipio](ctx, r)

	var out []IBGEEntry
	for m := range ch {
		uf := m.uf()
		if uf == "" || m.Nome == "" {
			continue
		}
		out = append(out, IBGEEntry{UF: uf, Name: m.Nome, key: Key(m.Nome)})
	}
	for err := range errCh {
		if err != nil {
			return nil, eris.Wrap(err, "reference: decode IBGE response")
		}
	}
	return out, nil
}

// WriteIBGECSV writes entries in the layout LoadIBGE reads.
func WriteIBGECSV(w io.Writer, entries []IBGEEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"uf", "municipio"}); err != nil {
		return eris.Wrap(err, "reference: write IBGE header")
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.UF, e.Name}); err != nil {
			return eris.Wrap(err, "reference: write IBGE row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "reference: flush IBGE csv")
}
