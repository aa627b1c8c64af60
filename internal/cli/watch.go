package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/procsup/internal/tui"
)

func newWatchCmd(ctx *context) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Launch the interactive status view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !supportsInteractiveOutput(cmd.OutOrStdout()) {
				return fmt.Errorf("watch requires an interactive terminal")
			}
			client := ctx.client()
			if _, err := client.Status(cmd.Context()); err != nil {
				return err
			}
			ui := tui.New(client, tui.WithRefreshInterval(interval))
			return ui.Run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Refresh interval")
	return cmd
}

func supportsInteractiveOutput(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
