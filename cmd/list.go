package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/ripedome/internal/matrix"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List protection modes and the size of their attack matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			configured, err := cfg.ParsedModes()
			if err != nil {
				return err
			}
			enabled := map[matrix.Mode]bool{}
			for _, m := range configured {
				enabled[m] = true
			}

			u := matrix.DefaultUniverse()
			fmt.Println("Modes:")
			for _, m := range matrix.AllModes {
				mark := " "
				if enabled[m] {
					mark = "*"
				}
				fmt.Printf(" %s %-16s edge=%-13s supervised=%-5v direct=%-5d indirect=%-5d both=%d\n",
					mark, m, m.Edge(), m.Supervised(),
					len(matrix.Enumerate(m, u.WithTechniques(matrix.Direct))),
					len(matrix.Enumerate(m, u.WithTechniques(matrix.Indirect))),
					len(matrix.Enumerate(m, u)))
				fmt.Printf("     generator: %s\n", cfg.GeneratorFor(m))
				if mon := cfg.MonitorFor(m); mon != "" {
					fmt.Printf("     monitor:   %s\n", mon)
				}
			}
			fmt.Println("\n* enabled in config")
			return nil
		},
	}
}
