package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procsup/internal/api"
	httpapi "github.com/Paintersrp/procsup/internal/api/http"
	"github.com/Paintersrp/procsup/internal/config"
)

// addrEnv overrides the default control endpoint for client commands.
const addrEnv = "PROCSUP_ADDR"

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	addr := config.DefaultControlAddr
	if value := strings.TrimSpace(os.Getenv(addrEnv)); value != "" {
		addr = value
	}

	root := &cobra.Command{
		Use:   "procsup",
		Short: "Single-host process supervisor",
	}
	root.PersistentFlags().StringVar(&addr, "addr", addr, "Address of the control endpoint")

	ctx := &context{addr: &addr}
	root.AddCommand(newDaemonCmd(ctx))
	root.AddCommand(newStatusCmd(ctx))
	root.AddCommand(newActionCmd(ctx, "start", "Start a program, or all programs"))
	root.AddCommand(newActionCmd(ctx, "stop", "Stop a program, or all programs"))
	root.AddCommand(newActionCmd(ctx, "restart", "Restart a program, or all programs"))
	root.AddCommand(newWatchCmd(ctx))
	root.AddCommand(newConfigCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

type context struct {
	addr *string

	// newClient is replaced in tests.
	newClient func(addr string) api.Controller
}

func (c *context) client() api.Controller {
	if c.newClient != nil {
		return c.newClient(*c.addr)
	}
	return httpapi.NewClient(*c.addr)
}

// describeError turns transport failures into operator-facing messages.
func describeError(err error) string {
	if errors.Is(err, httpapi.ErrServiceNotRunning) {
		return "Service is not running. Start it first with 'procsup daemon -c <config>'."
	}
	return err.Error()
}
