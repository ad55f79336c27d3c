package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/editais-cli/internal/model"
	"github.com/sells-group/editais-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect search run history",
	Long:  "Commands for listing and summarizing recorded searches. The json store keeps history only for the life of the process; use sqlite or postgres to keep it across runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent searches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		signature, _ := cmd.Flags().GetString("signature")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:    model.RunStatus(status),
			Signature: signature,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		if since > 0 {
			runs = runsSince(runs, time.Now().Add(-since))
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, partial, failed)")
	runsListCmd.Flags().String("signature", "", "filter by search signature")
	runsListCmd.Flags().Int("limit", store.DefaultRunLimit, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 7*24*time.Hour, "time window for stats (e.g. 24h, 168h); 0 for all")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

func runsSince(runs []model.SearchRun, cutoff time.Time) []model.SearchRun {
	var out []model.SearchRun
	for _, r := range runs {
		if !r.StartedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total       int
	Complete    int
	Partial     int
	Failed      int
	Running     int
	Records     int
	AvgDurSecs  float64
	AvgRecords  float64
	WarningRuns int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.SearchRun) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var finished int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
		case model.RunStatusPartial:
			s.Partial++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
		if r.Warnings > 0 {
			s.WarningRuns++
		}
		if r.FinishedAt != nil && r.Status != model.RunStatusFailed {
			totalDur += r.FinishedAt.Sub(r.StartedAt)
			s.Records += r.Records
			finished++
		}
	}

	if finished > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(finished)
		s.AvgRecords = float64(s.Records) / float64(finished)
	}
	return s
}

// formatRunsList writes a table of runs to out.
func formatRunsList(out io.Writer, runs []model.SearchRun) {
	t := newTable(out)
	t.AppendHeader(table.Row{"ID", "Signature", "Status", "Municípios", "Coletados", "Editais", "Avisos", "Início", "Duração"})

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		status := string(r.Status)
		if r.Error != "" {
			status += ": " + truncate(r.Error, 30)
		}
		t.AppendRow(table.Row{
			truncateID(r.ID),
			truncateID(r.Signature),
			status,
			len(r.Selections),
			r.Collected,
			r.Records,
			r.Warnings,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		})
	}
	t.Render()
}

// formatRunStats writes aggregate stats to out.
func formatRunStats(out io.Writer, s runStats) {
	t := newTable(out)
	t.AppendRows([]table.Row{
		{"Total runs", s.Total},
		{"Complete", s.Complete},
		{"Partial", s.Partial},
		{"Failed", s.Failed},
		{"Running", s.Running},
		{"With warnings", s.WarningRuns},
	})
	if s.AvgDurSecs > 0 {
		t.AppendRow(table.Row{"Avg duration", fmt.Sprintf("%.1fs", s.AvgDurSecs)})
	}
	if s.AvgRecords > 0 {
		t.AppendRow(table.Row{"Avg editais", fmt.Sprintf("%.1f", s.AvgRecords)})
	}
	t.Render()
}

// truncateID returns the first 8 characters of an ID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
