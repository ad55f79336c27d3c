package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/editais-cli/internal/config"
	"github.com/sells-group/editais-cli/internal/reference"
)

const testMunicipiosCSV = "Municipio;id;uf\n" +
	"Recife;2611606;PE\n" +
	"Olinda;2609600;PE\n" +
	"São Paulo;3550308;SP\n" +
	"Palmas;1721000;TO\n" +
	"Palmas;4117602;PR\n"

// useTestConfig points the global config at a temp dir holding a small
// municipality table and a JSON preset file.
func useTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	munPath := filepath.Join(dir, "ListaMunicipiosPNCP.csv")
	require.NoError(t, os.WriteFile(munPath, []byte(testMunicipiosCSV), 0o644))

	cfg = &config.Config{
		PNCP: config.PNCPConfig{
			Origin:            "http://127.0.0.1:1",
			SearchPath:        "/api/search",
			PageSize:          100,
			FallbackPageSizes: []int{50, 20},
			TimeoutSecs:       5,
		},
		Collect: config.CollectConfig{Concurrency: 1, MaxSelections: 3},
		Reference: config.ReferenceConfig{
			MunicipiosPath: munPath,
			IBGEPath:       filepath.Join(dir, "IBGE_Municipios.csv"),
		},
		Store:  config.StoreConfig{Driver: "json", Path: filepath.Join(dir, "saved_searches.json")},
		Cache:  config.CacheConfig{TTLMinutes: 5, MaxEntries: 8},
		Export: config.ExportConfig{Dir: dir, SheetName: "PNCP"},
		Server: config.ServerConfig{Port: 8080},
		Log:    config.LogConfig{Level: "info", Format: "json"},
	}
	return dir
}

func testCatalog() *reference.Catalog {
	return reference.NewCatalog([]reference.Municipio{
		{Code: "2611606", Name: "Recife", UF: "PE"},
		{Code: "2609600", Name: "Olinda", UF: "PE"},
		{Code: "3550308", Name: "São Paulo", UF: "SP"},
		{Code: "1721000", Name: "Palmas", UF: "TO"},
		{Code: "4117602", Name: "Palmas", UF: "PR"},
	}, nil)
}
