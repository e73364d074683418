package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/signalnine/ripedome/internal/attempt"
	"github.com/signalnine/ripedome/internal/classify"
	"github.com/signalnine/ripedome/internal/config"
	"github.com/signalnine/ripedome/internal/docker"
	"github.com/signalnine/ripedome/internal/matrix"
	"github.com/signalnine/ripedome/internal/report"
	"github.com/signalnine/ripedome/internal/result"
	"github.com/signalnine/ripedome/internal/runner"
	"github.com/signalnine/ripedome/internal/store"
)

var (
	flagMode      string
	flagFormats   []string
	flagNoColor   bool
	flagVerbosity report.Verbosity
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <direct|indirect|both> <repeat>",
		Short: "Run the attack matrix and classify every trial",
		Args:  cobra.ExactArgs(2),
		RunE:  runTrials,
	}
	cmd.Flags().StringVar(&flagMode, "mode", "", "run a single protection mode instead of the configured modes")
	cmd.Flags().StringSliceVar(&flagFormats, "format", nil, "summary formats: bash, latex, table, json (repeatable or comma separated)")
	cmd.Flags().BoolVar(&flagNoColor, "no-color", false, "disable ANSI colors")
	addVerbosityFlags(cmd, &flagVerbosity)
	return cmd
}

func addVerbosityFlags(cmd *cobra.Command, v *report.Verbosity) {
	cmd.Flags().BoolVar(&v.OnlySummary, "only-summary", false, "print no per-trial lines")
	cmd.Flags().BoolVar(&v.NotOK, "not-ok", false, "hide successful trials")
	cmd.Flags().BoolVar(&v.OnlyOK, "only-ok", false, "print successful trials only")
	cmd.Flags().BoolVar(&v.NotFail, "not-fail", false, "hide failed trials")
	cmd.Flags().BoolVar(&v.OnlyFail, "only-fail", false, "print failed trials only")
	cmd.Flags().BoolVar(&v.OnlySome, "only-some", false, "print partially successful trials only")
}

func runTrials(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	techniques, err := matrix.ParseTechniques(args[0])
	if err != nil {
		return err
	}
	repeat, err := parseRepeat(args[1])
	if err != nil {
		return err
	}
	modes, err := selectModes(cfg, flagMode)
	if err != nil {
		return err
	}
	formats, err := report.ParseFormats(flagFormats)
	if err != nil {
		return err
	}
	plan, err := runner.NewPlan(techniques, repeat, modes, flagVerbosity)
	if err != nil {
		return err
	}
	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	st, err := store.Open(filepath.Join(runDir, result.LedgerFile))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	names := make([]string, 0, len(techniques))
	for _, t := range techniques {
		names = append(names, string(t))
	}
	runID := uuid.Must(uuid.NewV7()).String()
	started := time.Now()
	if err := st.WriteRun(ctx, store.Run{ID: runID, Started: started, Techniques: names, Repeat: repeat}); err != nil {
		return err
	}
	slog.Info("run started", "run_id", runID, "trials", plan.TrialCount(), "repeat", repeat)

	color := !flagNoColor
	engine := &runner.Engine{
		Plan:     plan,
		Rules:    rules,
		Attempts: attemptsFor(cfg),
		Sinks: []runner.Sink{
			&runner.Ledger{Store: st, RunID: runID},
			&report.Status{Out: os.Stdout, Verbosity: plan.Verbosity, Color: color, RunDir: runDir},
		},
		Logger: slog.Default(),
	}
	aggs, runErr := engine.Run(ctx)

	for _, f := range formats {
		if err := report.WriteSummary(os.Stdout, f, aggs, color); err != nil {
			return err
		}
	}

	summary := &result.Summary{
		RunID:      runID,
		Techniques: names,
		Repeat:     repeat,
		Started:    started.UTC().Format(time.RFC3339),
		DurationS:  int(time.Since(started).Seconds()),
		Modes:      aggs,
	}
	if err := result.WriteSummary(runDir, summary); err != nil {
		slog.Warn("could not write summary", "error", err)
	}
	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}
	return nil
}

func parseRepeat(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid repeat count %q: %w", s, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("repeat count must be at least 1, got %d", n)
	}
	return n, nil
}

func selectModes(cfg *config.Config, name string) ([]matrix.Mode, error) {
	if name == "" {
		return cfg.ParsedModes()
	}
	m, err := matrix.ParseMode(name)
	if err != nil {
		return nil, err
	}
	return []matrix.Mode{m}, nil
}

func loadRules(cfg *config.Config) (*classify.Rules, error) {
	if cfg.RulesFile == "" {
		return classify.Default(), nil
	}
	return classify.LoadRules(cfg.RulesFile)
}

func slotsFor(cfg *config.Config) *attempt.Slots {
	return &attempt.Slots{
		Dir:          cfg.Scratch.Dir,
		Marker:       cfg.Scratch.Marker,
		PrimaryLog:   cfg.Scratch.PrimaryLog,
		MonitorLog:   cfg.Scratch.MonitorLog,
		StderrPrefix: cfg.Scratch.StderrPrefix,
	}
}

// attemptsFor wires an attempt runner for each mode from the config. All
// modes share the same artifact slots.
func attemptsFor(cfg *config.Config) runner.AttemptsFunc {
	slots := slotsFor(cfg)
	cpu, pin := cfg.PinnedCPU()
	return func(mode matrix.Mode) (runner.AttemptRunner, error) {
		var launcher attempt.Launcher
		if cfg.Launcher == config.LauncherDocker {
			if mode.Supervised() {
				return nil, fmt.Errorf("mode %s is monitor-supervised and cannot use the docker launcher", mode)
			}
			launcher = &docker.Launcher{Image: cfg.Docker.Image, ScratchDir: cfg.Scratch.Dir}
		}
		return attempt.New(attempt.Options{
			Mode:      mode,
			Generator: cfg.GeneratorFor(mode),
			Monitor:   cfg.MonitorFor(mode),
			Control:   cfg.Control(),
			Slots:     slots,
			Launcher:  launcher,
			Timeouts: attempt.Timeouts{
				Attack:    cfg.Timeouts.Attack,
				Monitor:   cfg.Timeouts.Monitor,
				KillGrace: cfg.Timeouts.KillGrace,
				Settle:    cfg.Timeouts.Settle,
				Cooldown:  cfg.Timeouts.Cooldown,
			},
			CPU:    cpu,
			PinCPU: pin,
			Logger: slog.Default(),
		}), nil
	}
}
