package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/editais-cli/internal/export"
	"github.com/sells-group/editais-cli/internal/model"
	"github.com/sells-group/editais-cli/internal/pipeline"
	"github.com/sells-group/editais-cli/internal/reference"
	"github.com/sells-group/editais-cli/internal/session"
	"github.com/sells-group/editais-cli/internal/store"
)

// searchInput is the search as given on the command line.
type searchInput struct {
	Preset     string
	Keyword    string
	Status     string
	UF         string
	Municipios []string
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search editais for one or more municipalities",
	Long: `Collects every edital published for the selected municipalities, keeps the
ones matching the keyword and status, and prints them newest first.

Municipalities are given as "Nome/UF", "Nome - UF", a bare name (resolved within
--uf when set) or a PNCP code. A preset supplies filters and municipalities;
flags given alongside it take precedence.`,
	Example: `  editais-cli search --municipio "Recife/PE" --municipio "Olinda/PE" --keyword merenda
  editais-cli search --preset nordeste --status encerradas --output resultados.xlsx`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSearch(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		in := searchInput{}
		in.Preset, _ = cmd.Flags().GetString("preset")
		in.Keyword, _ = cmd.Flags().GetString("keyword")
		in.Status, _ = cmd.Flags().GetString("status")
		in.UF, _ = cmd.Flags().GetString("uf")
		in.Municipios, _ = cmd.Flags().GetStringArray("municipio")
		asJSON, _ := cmd.Flags().GetBool("json")
		output, _ := cmd.Flags().GetString("output")
		saveAs, _ := cmd.Flags().GetString("save")

		sess := env.NewSession()
		if err := buildSearchSession(ctx, sess, env.Store, env.Catalog, in); err != nil {
			return err
		}

		if saveAs != "" {
			if err := env.Store.SavePreset(ctx, sess.Snapshot(saveAs)); err != nil {
				return eris.Wrap(err, "search: save preset")
			}
			fmt.Fprintf(os.Stderr, "Saved preset %q.\n", saveAs)
		}

		res, err := env.Searcher.Run(ctx, sess, func(p pipeline.ShardProgress) {
			if p.Err != nil {
				fmt.Fprintf(os.Stderr, "[%d/%d] %s: falhou (%v)\n", p.Done, p.Total, p.Selection.Label(), p.Err)
				return
			}
			fmt.Fprintf(os.Stderr, "[%d/%d] %s: %d itens\n", p.Done, p.Total, p.Selection.Label(), p.Items)
		})
		if err != nil {
			return eris.Wrap(err, "search")
		}

		printWarnings(os.Stderr, res.Warnings)

		if path := resolveOutputPath(output, cfg.Export.Dir, time.Now()); path != "" {
			if err := export.WriteFile(path, res.Records, cfg.Export.SheetName); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d records to %s\n", len(res.Records), path)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		renderRecords(os.Stdout, res)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringArrayP("municipio", "m", nil, `municipality as "Nome/UF" or PNCP code (repeatable)`)
	searchCmd.Flags().StringP("preset", "p", "", "load filters and municipalities from a saved preset")
	searchCmd.Flags().StringP("keyword", "k", "", "keep only editais whose text contains this keyword")
	searchCmd.Flags().StringP("status", "s", "", "status label or bucket (open, judging, closed, all)")
	searchCmd.Flags().String("uf", "", "default state for municipality names without one")
	searchCmd.Flags().StringP("output", "o", "", "write results to a .xlsx or .csv file, or to a directory")
	searchCmd.Flags().Bool("json", false, "print the result as JSON")
	searchCmd.Flags().String("save", "", "save the search as a preset with this name")
	rootCmd.AddCommand(searchCmd)
}

// buildSearchSession fills sess from the preset named in, then from the
// explicit flags. Every municipality must resolve before anything runs.
func buildSearchSession(ctx context.Context, sess *session.Session, st store.Store, catalog *reference.Catalog, in searchInput) error {
	if in.Preset != "" {
		p, err := st.GetPreset(ctx, in.Preset)
		if err != nil {
			return err
		}
		dropped := sess.Apply(*p)
		zap.L().Debug("preset applied", zap.String("preset", in.Preset), zap.Int("dropped", dropped))
	}

	f := sess.Filters()
	if in.Keyword != "" {
		f.Keyword = in.Keyword
	}
	if in.Status != "" {
		opt, ok := model.LookupStatus(in.Status)
		if !ok {
			return eris.Wrapf(pipeline.ErrUnknownStatus, "search: %q (use one of: %s)", in.Status, strings.Join(statusLabels(), ", "))
		}
		f.StatusLabel = opt.Label
	}
	if in.UF != "" {
		f.UF = reference.NormalizeUF(in.UF)
	}
	sess.SetFilters(f)

	for _, spec := range in.Municipios {
		sel, err := catalog.ResolveSpec(spec, f.UF)
		if err != nil {
			return err
		}
		if err := sess.Add(sel); err != nil {
			return err
		}
	}
	return nil
}

func statusLabels() []string {
	var out []string
	for _, o := range model.StatusOptions() {
		out = append(out, o.Label)
	}
	return out
}

// resolveOutputPath turns the --output flag into a file path. A value
// without an extension names a directory that receives the default file
// name. Bare file names go to dir.
func resolveOutputPath(output, dir string, now time.Time) string {
	if output == "" {
		return ""
	}
	if filepath.Ext(output) == "" {
		return filepath.Join(output, export.DefaultFileName(now, export.FormatXLSX))
	}
	if dir != "" && filepath.Base(output) == output {
		return filepath.Join(dir, output)
	}
	return output
}

func printWarnings(out io.Writer, warnings []model.ShardWarning) {
	for _, w := range warnings {
		name := w.Name
		if name == "" {
			name = w.Code
		}
		_, _ = fmt.Fprintf(out, "warning: %s: %s\n", name, w.Message)
	}
}

// renderRecords prints the result as a table followed by a summary line.
func renderRecords(out io.Writer, res *model.SearchResult) {
	if len(res.Records) == 0 {
		_, _ = fmt.Fprintf(out, "No editais found (%d collected).\n", res.Collected)
		return
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Cidade", "Título", "Modalidade", "Publicação", "Fim proposta", "Situação", "Link"})
	for _, r := range res.Records {
		city := r.City
		if r.RegionCode != "" {
			city += "/" + r.RegionCode
		}
		t.AppendRow(table.Row{
			city,
			truncate(r.Title, 50),
			truncate(r.ProcurementModality, 24),
			r.PublishedAt,
			r.ProposalDeadline,
			truncate(r.StatusLabel, 24),
			r.DetailURL,
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d editais", len(res.Records)), "", "", "", "", "", fmt.Sprintf("%d coletados", res.Collected)})
	t.Render()
}
