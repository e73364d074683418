package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/ripedome/internal/report"
	"github.com/signalnine/ripedome/internal/result"
	"github.com/signalnine/ripedome/internal/store"
)

var (
	flagReportFormats   []string
	flagReportTrials    bool
	flagReportNoColor   bool
	flagReportVerbosity report.Verbosity
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Re-render the summary of a stored run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			runDir := filepath.Join(cfg.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			formats, err := report.ParseFormats(flagReportFormats)
			if err != nil {
				return err
			}
			return renderStoredRun(cmd.Context(), os.Stdout, resolved, &renderOpts{
				formats:   formats,
				trials:    flagReportTrials,
				color:     !flagReportNoColor,
				verbosity: flagReportVerbosity,
			})
		},
	}
	cmd.Flags().StringSliceVar(&flagReportFormats, "format", nil, "summary formats: bash, latex, table, json")
	cmd.Flags().BoolVar(&flagReportTrials, "trials", false, "also print the per-trial status lines")
	cmd.Flags().BoolVar(&flagReportNoColor, "no-color", false, "disable ANSI colors")
	addVerbosityFlags(cmd, &flagReportVerbosity)
	return cmd
}

type renderOpts struct {
	formats   []report.Format
	trials    bool
	color     bool
	verbosity report.Verbosity
}

func renderStoredRun(ctx context.Context, w io.Writer, runDir string, opts *renderOpts) error {
	ledger := filepath.Join(runDir, result.LedgerFile)
	if _, err := os.Stat(ledger); err != nil {
		return fmt.Errorf("no verdict ledger in %s: %w", runDir, err)
	}
	st, err := store.Open(ledger)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.LatestRun(ctx)
	if err != nil {
		return err
	}
	if opts.trials {
		trials, err := st.ReadTrials(ctx, run.ID)
		if err != nil {
			return err
		}
		for i := range trials {
			if opts.verbosity.Shows(trials[i].Verdict) {
				fmt.Fprintln(w, report.StatusLine(&trials[i], opts.color))
			}
		}
	}

	aggs, err := st.Aggregates(ctx, run.ID)
	if err != nil {
		return err
	}
	for _, f := range opts.formats {
		if err := report.WriteSummary(w, f, aggs, opts.color); err != nil {
			return err
		}
	}
	return nil
}
