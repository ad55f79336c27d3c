package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/editais-cli/internal/config"
	"github.com/sells-group/editais-cli/internal/fetcher"
	"github.com/sells-group/editais-cli/internal/reference"
)

var municipiosCmd = &cobra.Command{
	Use:     "municipios",
	Aliases: []string{"municipio"},
	Short:   "Browse and update the municipality reference tables",
}

// -- municipios list --

var municipiosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List PNCP municipalities, optionally for one state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog, err := loadCatalog(cmd.Context())
		if err != nil {
			return err
		}

		uf, _ := cmd.Flags().GetString("uf")
		if uf == "" {
			formatUFs(os.Stdout, catalog)
			return nil
		}
		list := catalog.List(uf)
		if len(list) == 0 {
			fmt.Fprintf(os.Stderr, "No municipalities for UF %q.\n", uf)
			return nil
		}
		formatMunicipios(os.Stdout, list)
		return nil
	},
}

// -- municipios resolve --

var municipiosResolveCmd = &cobra.Command{
	Use:   "resolve <name>...",
	Short: "Show the PNCP code for each municipality name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(cmd.Context())
		if err != nil {
			return err
		}
		uf, _ := cmd.Flags().GetString("uf")

		t := newTable(os.Stdout)
		t.AppendHeader(table.Row{"Entrada", "Código", "Nome", "UF"})
		failed := 0
		for _, spec := range args {
			sel, err := catalog.ResolveSpec(spec, uf)
			if err != nil {
				failed++
				t.AppendRow(table.Row{spec, "-", err.Error(), ""})
				continue
			}
			t.AppendRow(table.Row{spec, sel.Code, sel.Name, sel.UF})
		}
		t.Render()

		if failed > 0 {
			return eris.Wrapf(reference.ErrMunicipioNotFound, "%d of %d names did not resolve", failed, len(args))
		}
		return nil
	},
}

// -- municipios sync --

var municipiosSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the reference tables to their configured paths",
	Long: `Downloads the PNCP municipality table from reference.municipios_url and the
IBGE state catalog from reference.ibge_url. Downloads run in parallel and
are skipped when the server reports the file unchanged since the last sync.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("sync"); err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout: cfg.PNCP.Timeout(),
			Retry:   cfg.Retry.Policy(),
		})
		results, err := syncReference(cmd.Context(), f, cfg.Reference, force)
		for _, r := range results {
			if r.Changed {
				fmt.Fprintf(os.Stderr, "%s: updated (%d bytes)\n", r.Path, r.Bytes)
			} else {
				fmt.Fprintf(os.Stderr, "%s: unchanged\n", r.Path)
			}
		}
		return err
	},
}

func init() {
	municipiosListCmd.Flags().String("uf", "", "state abbreviation (lists states when omitted)")
	municipiosResolveCmd.Flags().String("uf", "", "default state for names without one")
	municipiosSyncCmd.Flags().Bool("force", false, "download even when the server reports no change")

	municipiosCmd.AddCommand(municipiosListCmd)
	municipiosCmd.AddCommand(municipiosResolveCmd)
	municipiosCmd.AddCommand(municipiosSyncCmd)
	rootCmd.AddCommand(municipiosCmd)
}

// syncResult describes one reference file after a sync.
type syncResult struct {
	Path    string
	Changed bool
	Bytes   int64
}

// syncReference fetches the configured reference tables concurrently.
// Results are returned for every table that finished, even on error.
func syncReference(ctx context.Context, f fetcher.Fetcher, ref config.ReferenceConfig, force bool) ([]syncResult, error) {
	var results [2]*syncResult
	g, gctx := errgroup.WithContext(ctx)

	if ref.MunicipiosURL != "" {
		g.Go(func() error {
			r, err := syncFile(gctx, f, ref.MunicipiosURL, ref.MunicipiosPath, force, nil)
			results[0] = r
			return eris.Wrap(err, "sync municipios")
		})
	}
	if ref.IBGEURL != "" {
		g.Go(func() error {
			r, err := syncFile(gctx, f, ref.IBGEURL, ref.IBGEPath, force, ibgeToCSV)
			results[1] = r
			return eris.Wrap(err, "sync ibge")
		})
	}
	err := g.Wait()

	var out []syncResult
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, err
}

// syncFile downloads url to path when its ETag differs from the one saved
// next to path. convert, when set, rewrites the body before it is stored.
func syncFile(ctx context.Context, f fetcher.Fetcher, url, path string, force bool, convert func(context.Context, io.Reader) (io.Reader, error)) (*syncResult, error) {
	etagPath := path + ".etag"
	etag := ""
	if !force {
		if b, err := os.ReadFile(etagPath); err == nil {
			etag = strings.TrimSpace(string(b))
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			etag = ""
		}
	}

	body, newETag, changed, err := f.DownloadIfChanged(ctx, url, etag)
	if err != nil {
		return nil, err
	}
	if !changed {
		zap.L().Info("reference unchanged", zap.String("url", url), zap.String("path", path))
		return &syncResult{Path: path}, nil
	}
	defer body.Close() //nolint:errcheck

	var src io.Reader = body
	if convert != nil {
		if src, err = convert(ctx, body); err != nil {
			return nil, err
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "create %s", dir)
		}
	}
	n, err := fetcher.WriteFile(path, src)
	if err != nil {
		return nil, err
	}

	if newETag != "" {
		if err := os.WriteFile(etagPath, []byte(newETag+"\n"), 0o644); err != nil {
			zap.L().Warn("could not save etag", zap.String("path", etagPath), zap.Error(err))
		}
	} else {
		_ = os.Remove(etagPath)
	}

	zap.L().Info("reference updated", zap.String("url", url), zap.String("path", path), zap.Int64("bytes", n))
	return &syncResult{Path: path, Changed: true, Bytes: n}, nil
}

// ibgeToCSV converts the IBGE localidades JSON into the CSV layout the
// catalog loader reads.
func ibgeToCSV(ctx context.Context, r io.Reader) (io.Reader, error) {
	entries, err := reference.ReadIBGEAPI(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, eris.New("ibge response has no municipalities")
	}
	var buf bytes.Buffer
	if err := reference.WriteIBGECSV(&buf, entries); err != nil {
		return nil, err
	}
	return &buf, nil
}

func formatUFs(out io.Writer, catalog *reference.Catalog) {
	t := newTable(out)
	t.AppendHeader(table.Row{"UF", "Municípios PNCP"})
	total := 0
	for _, uf := range catalog.UFs() {
		n := len(catalog.List(uf))
		total += n
		t.AppendRow(table.Row{uf, n})
	}
	t.AppendFooter(table.Row{"Total", total})
	t.Render()
}

func formatMunicipios(out io.Writer, list []reference.Municipio) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Código", "Nome", "UF"})
	for _, m := range list {
		t.AppendRow(table.Row{m.Code, m.Name, m.UF})
	}
	t.Render()
}
