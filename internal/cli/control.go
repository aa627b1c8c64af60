package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procsup/internal/api"
	"github.com/Paintersrp/procsup/internal/cliutil"
)

func newStatusCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Display the state of every program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATE\tUPTIME\tRESTARTS")
			for _, st := range report.Programs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", st.Name, st.State, cliutil.FormatUptime(st.Uptime), st.RestartCount)
			}
			return w.Flush()
		},
	}
}

func newActionCmd(ctx *context, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [program|all]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := api.AllPrograms
			if len(args) == 1 {
				target = args[0]
			}

			client := ctx.client()
			var (
				res *api.ActionResult
				err error
			)
			switch action {
			case "start":
				res, err = client.Start(cmd.Context(), target)
			case "stop":
				res, err = client.Stop(cmd.Context(), target)
			case "restart":
				res, err = client.Restart(cmd.Context(), target)
			default:
				return fmt.Errorf("unknown action %q", action)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cliutil.FormatResult(action, target, res))
			return nil
		},
	}
}
