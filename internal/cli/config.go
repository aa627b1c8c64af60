package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procsup/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with supervisor configuration files",
	}
	cmd.AddCommand(newConfigLintCmd())
	return cmd
}

func newConfigLintCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a supervisor configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d program(s) OK\n", cfg.Path, len(cfg.Programs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "procsup.yaml", "Path to the supervisor configuration")
	return cmd
}
