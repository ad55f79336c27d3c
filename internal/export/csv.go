package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/editais-cli/internal/model"
)

// WriteCSV writes records with a ';' separator and a ',' decimal mark, the
// defaults of pt-BR spreadsheet software. A UTF-8 BOM is written first so
// Excel detects the encoding.
func WriteCSV(w io.Writer, records []model.Record) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return eris.Wrap(err, "export: write bom")
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(Headers()); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	row := make([]string, len(columns)+1)
	for _, r := range records {
		for i, c := range columns {
			row[i] = c.Value(r)
		}
		row[len(columns)] = formatValue(r.EstimatedValue)
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	s := strconv.FormatFloat(*v, 'f', 2, 64)
	for i := range s {
		if s[i] == '.' {
			return s[:i] + "," + s[i+1:]
		}
	}
	return s
}
