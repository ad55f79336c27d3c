// Package export writes search results as spreadsheets.
package export

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/editais-cli/internal/model"
)

// DefaultSheetName is the worksheet name of XLSX exports.
const DefaultSheetName = "PNCP"

// column is one exported field. Internal fields such as the shard key,
// parsed timestamp and control number have no column.
type column struct {
	Header string
	Value  func(r model.Record) string
}

var columns = []column{
	{"Cidade", func(r model.Record) string { return r.City }},
	{"UF", func(r model.Record) string { return r.RegionCode }},
	{"Título", func(r model.Record) string { return r.Title }},
	{"Objeto", func(r model.Record) string { return r.Description }},
	{"Link para o edital", func(r model.Record) string { return r.DetailURL }},
	{"Modalidade", func(r model.Record) string { return r.ProcurementModality }},
	{"Tipo", func(r model.Record) string { return r.Kind }},
	{"Tipo (documento)", func(r model.Record) string { return r.DocumentType }},
	{"Orgão", func(r model.Record) string { return r.IssuingBody }},
	{"Unidade", func(r model.Record) string { return r.IssuingUnit }},
	{"Esfera", func(r model.Record) string { return r.GovernmentTier }},
	{"Publicação", func(r model.Record) string { return r.PublishedAt }},
	{"Fim do envio de proposta", func(r model.Record) string { return r.ProposalDeadline }},
	{"Situação", func(r model.Record) string { return r.StatusLabel }},
	{"Nº Processo", func(r model.Record) string { return r.ProcessNumber }},
}

// valueHeader is the trailing numeric column.
const valueHeader = "Valor estimado"

// Headers returns the exported column names in order.
func Headers() []string {
	out := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		out = append(out, c.Header)
	}
	return append(out, valueHeader)
}

// Format is an export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", eris.Errorf("export: unsupported file extension %q (want .xlsx or .csv)", filepath.Ext(path))
	}
}

// DefaultFileName returns pncp_resultados_YYYYMMDD_HHMMSS.<format>.
func DefaultFileName(now time.Time, f Format) string {
	return "pncp_resultados_" + now.Format("20060102_150405") + "." + string(f)
}
