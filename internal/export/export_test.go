package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/editais-cli/internal/model"
)

func ptr(v float64) *float64 { return &v }

func cellValue(cells []*xlsx.Cell, i int) string {
	if i >= len(cells) {
		return ""
	}
	return cells[i].Value
}

func testRecords() []model.Record {
	return []model.Record{
		{
			City:                   "Recife",
			RegionCode:             "PE",
			Title:                  "Pregão Eletrônico 12/2026",
			Description:            "Aquisição de merenda escolar; lote único",
			DetailURL:              "https://pncp.gov.br/app/editais/10565000000192/2026/12",
			ProcurementModality:    "Pregão - Eletrônico",
			DocumentType:           "Edital",
			IssuingBody:            "MUNICIPIO DE RECIFE",
			GovernmentTier:         "Municipal",
			PublishedAt:            "02/03/2026 09:15",
			ProposalDeadline:       "20/03/2026 08:00",
			ProcessNumber:          "PE-12/2026",
			StatusLabel:            "A Receber/Recebendo Proposta",
			EstimatedValue:         ptr(1234567.5),
			SourceMunicipalityCode: "2611606",
			ControlNumber:          "10565000000192-1-000012/2026",
		},
		{City: "Olinda", RegionCode: "PE", Title: "Dispensa 3/2026"},
	}
}

func TestHeaders(t *testing.T) {
	h := Headers()
	require.Len(t, h, 16)
	assert.Equal(t, "Cidade", h[0])
	assert.Equal(t, "Link para o edital", h[4])
	assert.Equal(t, "Fim do envio de proposta", h[12])
	assert.Equal(t, "Valor estimado", h[15])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, testRecords(), ""))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet[DefaultSheetName]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0].Cells
	require.Len(t, header, 16)
	assert.Equal(t, "Título", header[2].Value)

	first := sheet.Rows[1].Cells
	assert.Equal(t, "Recife", first[0].Value)
	assert.Equal(t, "https://pncp.gov.br/app/editais/10565000000192/2026/12", first[4].Value)
	v, err := first[15].Float()
	require.NoError(t, err)
	assert.InDelta(t, 1234567.5, v, 0.001)

	second := sheet.Rows[2].Cells
	assert.Equal(t, "Olinda", second[0].Value)
	assert.Equal(t, "", cellValue(second, 15))

	for _, idx := range []int{1, 16} {
		col := sheet.Cols.FindColByIndex(idx)
		require.NotNil(t, col, "column %d", idx)
		assert.InDelta(t, 18.0, col.Width, 0.001)
	}
}

func TestWriteXLSX_DoesNotLeakInternalFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, testRecords(), "Resultados"))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet["Resultados"]
	require.True(t, ok)
	for _, row := range sheet.Rows {
		for _, c := range row.Cells {
			assert.NotEqual(t, "2611606", c.Value)
			assert.NotEqual(t, "10565000000192-1-000012/2026", c.Value)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, testRecords()))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"))
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(out, "\ufeff")), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Cidade;UF;Título;Objeto;"))
	assert.Contains(t, lines[1], `"Aquisição de merenda escolar; lote único"`)
	assert.True(t, strings.HasSuffix(lines[1], ";1234567,50"))
	assert.True(t, strings.HasSuffix(lines[2], ";"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "0,00", formatValue(ptr(0)))
	assert.Equal(t, "-12,35", formatValue(ptr(-12.345)))
}

func TestFormatFor(t *testing.T) {
	f, err := FormatFor("out/Resultados.XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = FormatFor("r.csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = FormatFor("r.ods")
	require.Error(t, err)
}

func TestDefaultFileName(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, "pncp_resultados_20260302_090507.xlsx", DefaultFileName(now, FormatXLSX))
	assert.Equal(t, "pncp_resultados_20260302_090507.csv", DefaultFileName(now, FormatCSV))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	xlsxPath := filepath.Join(dir, "sub", "r.xlsx")
	require.NoError(t, WriteFile(xlsxPath, testRecords(), ""))
	_, err := xlsx.OpenFile(xlsxPath)
	require.NoError(t, err)

	csvPath := filepath.Join(dir, "r.csv")
	require.NoError(t, WriteFile(csvPath, testRecords(), ""))
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Recife;PE;")

	_, err = os.Stat(csvPath + ".part")
	assert.True(t, os.IsNotExist(err))

	require.Error(t, WriteFile(filepath.Join(dir, "r.txt"), nil, ""))
}
