package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/editais-cli/internal/model"
)

const valueFormat = "#,##0.00"

// WriteXLSX writes records as a single-sheet workbook. The estimated value
// is a numeric cell, left blank when unknown.
func WriteXLSX(w io.Writer, records []model.Record, sheetName string) error {
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %q", sheetName)
	}

	bold := xlsx.NewStyle()
	bold.Font.Bold = true
	bold.ApplyFont = true

	header := sheet.AddRow()
	for _, h := range Headers() {
		cell := header.AddCell()
		cell.SetString(h)
		cell.SetStyle(bold)
	}

	for _, r := range records {
		row := sheet.AddRow()
		for _, c := range columns {
			row.AddCell().SetString(c.Value(r))
		}
		cell := row.AddCell()
		if r.EstimatedValue != nil {
			cell.SetFloatWithFormat(*r.EstimatedValue, valueFormat)
		}
	}

	sheet.SetColWidth(1, len(columns)+1, 18)
	return eris.Wrap(f.Write(w), "export: write xlsx")
}
