package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/ripedome/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and that every generator and monitor is executable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if _, err := loadRules(cfg); err != nil {
				return err
			}
			problems, err := preflight(cfg, os.Stdout)
			if err != nil {
				return err
			}
			if problems > 0 {
				return fmt.Errorf("%d problem(s) found", problems)
			}
			fmt.Println("ok")
			return nil
		},
	}
}

// preflight reports every configured mode whose executables are missing and
// returns how many problems it found.
func preflight(cfg *config.Config, w io.Writer) (int, error) {
	modes, err := cfg.ParsedModes()
	if err != nil {
		return 0, err
	}
	problems := 0
	check := func(kind, path string) {
		if err := checkExecutable(path); err != nil {
			fmt.Fprintf(w, "  %s %s: %v\n", kind, path, err)
			problems++
		}
	}
	for _, m := range modes {
		check("generator", cfg.GeneratorFor(m))
		if mon := cfg.MonitorFor(m); mon != "" {
			check("monitor", mon)
		}
	}
	return problems, nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	if info.Mode().Perm()&0o111 == 0 {
		return errors.New("not executable")
	}
	return nil
}
