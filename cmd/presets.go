package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/editais-cli/internal/model"
	"github.com/sells-group/editais-cli/internal/pipeline"
	"github.com/sells-group/editais-cli/internal/session"
	"github.com/sells-group/editais-cli/internal/store"
)

// presetFile is the YAML document read by `presets import` and written by
// `presets export`.
type presetFile struct {
	Presets []model.SavedSearch `yaml:"presets"`
}

var presetsCmd = &cobra.Command{
	Use:     "presets",
	Aliases: []string{"preset"},
	Short:   "Manage saved searches",
}

// withStore opens the configured store for the duration of fn.
func withStore(ctx context.Context, fn func(store.Store) error) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	return fn(st)
}

// -- presets list --

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved searches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(st store.Store) error {
			presets, err := st.ListPresets(cmd.Context())
			if err != nil {
				return eris.Wrap(err, "presets list")
			}
			if len(presets) == 0 {
				fmt.Fprintln(os.Stderr, "No presets saved.")
				return nil
			}
			formatPresetsList(os.Stdout, presets)
			return nil
		})
	},
}

// -- presets show --

var presetsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a saved search as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(st store.Store) error {
			p, err := st.GetPreset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close() //nolint:errcheck
			return enc.Encode(p)
		})
	},
}

// -- presets save --

var presetsSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a search without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("search"); err != nil {
			return err
		}
		catalog, err := loadCatalog(ctx)
		if err != nil {
			return err
		}

		in := searchInput{}
		in.Preset, _ = cmd.Flags().GetString("from")
		in.Keyword, _ = cmd.Flags().GetString("keyword")
		in.Status, _ = cmd.Flags().GetString("status")
		in.UF, _ = cmd.Flags().GetString("uf")
		in.Municipios, _ = cmd.Flags().GetStringArray("municipio")

		return withStore(ctx, func(st store.Store) error {
			sess := session.New(session.WithLimit(cfg.Collect.MaxSelections))
			if err := buildSearchSession(ctx, sess, st, catalog, in); err != nil {
				return err
			}
			if len(sess.Selections()) == 0 {
				return pipeline.ErrNoSelection
			}
			if err := st.SavePreset(ctx, sess.Snapshot(args[0])); err != nil {
				return eris.Wrap(err, "presets save")
			}
			fmt.Fprintf(os.Stderr, "Saved preset %q with %d municipalities.\n", args[0], len(sess.Selections()))
			return nil
		})
	},
}

// -- presets delete --

var presetsDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a saved search",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(st store.Store) error {
			if err := st.DeletePreset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Deleted preset %q.\n", args[0])
			return nil
		})
	},
}

// -- presets export --

var presetsExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write every saved search to a YAML file (stdout when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(st store.Store) error {
			presets, err := st.ListPresets(cmd.Context())
			if err != nil {
				return eris.Wrap(err, "presets export")
			}
			if len(args) == 0 {
				return writePresetFile(os.Stdout, presets)
			}
			f, err := os.Create(args[0])
			if err != nil {
				return eris.Wrap(err, "presets export: create file")
			}
			if err := writePresetFile(f, presets); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return eris.Wrap(err, "presets export: close file")
			}
			fmt.Fprintf(os.Stderr, "Exported %d presets to %s\n", len(presets), args[0])
			return nil
		})
	},
}

// -- presets import --

var presetsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load saved searches from a YAML file, overwriting same-named ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "presets import: open file")
		}
		defer f.Close() //nolint:errcheck

		presets, err := readPresetFile(f)
		if err != nil {
			return err
		}

		return withStore(cmd.Context(), func(st store.Store) error {
			n, err := st.ImportPresets(cmd.Context(), presets)
			if err != nil {
				return eris.Wrap(err, "presets import")
			}
			fmt.Fprintf(os.Stderr, "Imported %d presets from %s\n", n, args[0])
			return nil
		})
	},
}

func init() {
	presetsSaveCmd.Flags().StringArrayP("municipio", "m", nil, `municipality as "Nome/UF" or PNCP code (repeatable)`)
	presetsSaveCmd.Flags().String("from", "", "start from an existing preset")
	presetsSaveCmd.Flags().StringP("keyword", "k", "", "keyword filter")
	presetsSaveCmd.Flags().StringP("status", "s", "", "status label or bucket")
	presetsSaveCmd.Flags().String("uf", "", "default state for municipality names")

	presetsCmd.AddCommand(presetsListCmd)
	presetsCmd.AddCommand(presetsShowCmd)
	presetsCmd.AddCommand(presetsSaveCmd)
	presetsCmd.AddCommand(presetsDeleteCmd)
	presetsCmd.AddCommand(presetsExportCmd)
	presetsCmd.AddCommand(presetsImportCmd)
	rootCmd.AddCommand(presetsCmd)
}

func writePresetFile(w io.Writer, presets []model.SavedSearch) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(presetFile{Presets: presets}); err != nil {
		return eris.Wrap(err, "presets: encode yaml")
	}
	return eris.Wrap(enc.Close(), "presets: flush yaml")
}

// readPresetFile decodes and checks a preset document. Names must be unique
// and present; status labels must be known; every municipality needs a code.
func readPresetFile(r io.Reader) ([]model.SavedSearch, error) {
	var doc presetFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "presets: decode yaml")
	}

	seen := make(map[string]bool)
	for i, p := range doc.Presets {
		name := strings.TrimSpace(p.Name)
		switch {
		case name == "":
			return nil, eris.Errorf("presets: entry %d has no name", i+1)
		case seen[name]:
			return nil, eris.Errorf("presets: %q appears more than once", name)
		}
		seen[name] = true
		doc.Presets[i].Name = name

		if p.StatusLabel != "" {
			opt, ok := model.LookupStatus(p.StatusLabel)
			if !ok {
				return nil, eris.Wrapf(pipeline.ErrUnknownStatus, "presets: %q has status %q", name, p.StatusLabel)
			}
			doc.Presets[i].StatusLabel = opt.Label
		}
		for _, sel := range p.Selections {
			if strings.TrimSpace(sel.Code) == "" {
				return nil, eris.Errorf("presets: %q lists %q without codigo_pncp", name, sel.Name)
			}
		}
	}
	return doc.Presets, nil
}

func formatPresetsList(out io.Writer, presets []model.SavedSearch) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Nome", "Palavra-chave", "Situação", "UF", "Municípios"})
	for _, p := range presets {
		names := make([]string, len(p.Selections))
		for i, sel := range p.Selections {
			names[i] = sel.Name
		}
		t.AppendRow(table.Row{
			p.Name,
			p.Keyword,
			p.StatusLabel,
			p.UF,
			fmt.Sprintf("%d: %s", len(p.Selections), truncate(strings.Join(names, ", "), 40)),
		})
	}
	t.Render()
}
