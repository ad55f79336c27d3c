//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/editais-cli/internal/config"
	"github.com/sells-group/editais-cli/internal/store"
)

func TestInitStore_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.json")
	cfg = &config.Config{Store: config.StoreConfig{Driver: "json", Path: path}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	js, ok := st.(*store.JSONStore)
	require.True(t, ok)
	assert.Equal(t, path, js.Path())
}

func TestInitStore_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", Path: dsn}}

	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(dsn)
	assert.NoError(t, statErr)
}

func TestInitStore_SQLiteDefaultPath(t *testing.T) {
	// The json default file name is not reused as a database.
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", Path: store.DefaultPresetFile}}

	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, defaultSQLitePath))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(tmpDir, store.DefaultPresetFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInitStore_PostgresBadURL(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "postgres", DatabaseURL: "postgres://user@%zz/db"}}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	assert.Error(t, err)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestLoadCatalog(t *testing.T) {
	useTestConfig(t)

	catalog, err := loadCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, catalog.Len())

	sel, err := catalog.Resolve("sao paulo", "")
	require.NoError(t, err)
	assert.Equal(t, "3550308", sel.Code)
}

func TestLoadCatalog_MissingTableSuggestsSync(t *testing.T) {
	useTestConfig(t)
	cfg.Reference.MunicipiosPath = filepath.Join(t.TempDir(), "missing.csv")

	_, err := loadCatalog(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "municipios sync")
}

func TestInitSearch(t *testing.T) {
	useTestConfig(t)

	env, err := initSearch(context.Background(), "search")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Searcher)
	assert.NotNil(t, env.Cache)
	assert.Equal(t, 5, env.Catalog.Len())

	sess := env.NewSession()
	assert.Equal(t, 3, sess.Limit())
	assert.Same(t, env.Cache, sess.Cache())
}

func TestInitSearch_InvalidConfig(t *testing.T) {
	useTestConfig(t)
	cfg.PNCP.PageSize = 0

	_, err := initSearch(context.Background(), "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pncp.page_size")
}
