package reference

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/sells-group/editais-cli/internal/fetcher"
)

// Municipio is one row of the PNCP municipality table.
type Municipio struct {
	Code string `json:"codigo_pncp"`
	Name string `json:"nome"`
	UF   string `json:"uf"`
	key  string
}

// IBGEEntry is one row of the IBGE state/municipality catalog.
type IBGEEntry struct {
	UF   string `json:"uf"`
	Name string `json:"municipio"`
	key  string
}

type dialect struct {
	name     string
	encoding encoding.Encoding // nil = UTF-8, validated
	bom      bool              // only tried when the data starts with a BOM
}

// dialects are tried in order; every encoding is combined with every separator.
var (
	dialects = []dialect{
		{"utf-8", nil, false},
		{"utf-8-sig", unicode.UTF8BOM, true},
		{"latin1", charmap.ISO8859_1, false},
		{"cp1252", charmap.Windows1252, false},
	}
	separators = []rune{',', ';', '\t', '|'}
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
)

var (
	nameColumns    = []string{"municipio", "nome", "nome_municipio"}
	codeColumns    = []string{"id", "codigo", "codigo_pncp"}
	ufColumns      = []string{"uf", "estado", "sigla_uf"}
	ibgeUFColumns  = []string{"uf", "sigla_uf", "estado"}
	ibgeMunColumns = []string{"municipio", "nome"}
)

// LoadMunicipios reads the PNCP municipality table from a CSV or XLSX file.
// Rows without a code or a name are dropped and codes are deduplicated,
// first wins.
func LoadMunicipios(ctx context.Context, path string) ([]Municipio, error) {
	tables, err := readTables(ctx, path)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		nameCol := findColumn(t.header, nameColumns)
		codeCol := findColumn(t.header, codeColumns)
		if nameCol < 0 || codeCol < 0 {
			continue
		}
		ufCol := findColumn(t.header, ufColumns)

		seen := make(map[string]bool)
		var out []Municipio
		for _, row := range t.rows {
			code := cell(row, codeCol)
			name := cell(row, nameCol)
			if code == "" || seen[code] || Key(name) == "" {
				continue
			}
			seen[code] = true
			out = append(out, Municipio{
				Code: code,
				Name: name,
				UF:   strings.ToUpper(cell(row, ufCol)),
				key:  Key(name),
			})
		}
		zap.L().Debug("reference: loaded municipality table",
			zap.String("path", path),
			zap.String("dialect", t.dialect),
			zap.Int("rows", len(out)),
		)
		return out, nil
	}
	return nil, eris.Errorf("reference: %s has no municipality name and id columns", path)
}

// LoadIBGE reads the IBGE catalog. A missing file yields (nil, nil).
func LoadIBGE(ctx context.Context, path string) ([]IBGEEntry, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	tables, err := readTables(ctx, path)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		if len(t.header) < 2 {
			continue
		}
		ufCol := findColumn(t.header, ibgeUFColumns)
		munCol := findColumn(t.header, ibgeMunColumns)
		if ufCol < 0 || munCol < 0 {
			continue
		}

		seen := make(map[string]bool)
		var out []IBGEEntry
		for _, row := range t.rows {
			e := IBGEEntry{UF: strings.ToUpper(cell(row, ufCol)), Name: cell(row, munCol)}
			e.key = Key(e.Name)
			if e.UF == "" || e.key == "" || seen[e.UF+"|"+e.key] {
				continue
			}
			seen[e.UF+"|"+e.key] = true
			out = append(out, e)
		}
		return out, nil
	}
	zap.L().Warn("reference: IBGE catalog has no uf and municipio columns, ignoring", zap.String("path", path))
	return nil, nil
}

type table struct {
	dialect string
	header  []string // folded with Key
	rows    [][]string
}

// readTables returns every plausible parse of the file: one per
// encoding/separator combination that yields a header and at least one row.
func readTables(ctx context.Context, path string) ([]table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
		if err != nil {
			return nil, eris.Wrapf(err, "reference: read %s", path)
		}
		if t, ok := newTable("xlsx", rows); ok {
			return []table{t}, nil
		}
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reference: read %s", path)
	}

	var tables []table
	for _, d := range dialects {
		if d.encoding == nil && !utf8.Valid(data) {
			continue
		}
		if d.bom && !bytes.HasPrefix(data, utf8BOM) {
			continue
		}
		for _, sep := range separators {
			rows, err := fetcher.ReadAllCSV(ctx, bytes.NewReader(data), fetcher.CSVOptions{
				Delimiter:  sep,
				Encoding:   d.encoding,
				LazyQuotes: true,
				TrimSpace:  true,
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil, eris.Wrap(ctx.Err(), "reference: load cancelled")
				}
				continue
			}
			if t, ok := newTable(d.name+" "+string(sep), rows); ok {
				tables = append(tables, t)
			}
		}
	}
	return tables, nil
}

func newTable(dialect string, rows [][]string) (table, bool) {
	if len(rows) < 2 || len(rows[0]) == 0 {
		return table{}, false
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = Key(h)
	}
	return table{dialect: dialect, header: header, rows: rows[1:]}, true
}

func findColumn(header []string, names []string) int {
	for _, n := range names {
		for i, h := range header {
			if h == n {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
