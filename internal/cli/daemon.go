package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	httpapi "github.com/Paintersrp/procsup/internal/api/http"
	"github.com/Paintersrp/procsup/internal/config"
	"github.com/Paintersrp/procsup/internal/engine"
	"github.com/Paintersrp/procsup/internal/logging"
)

// sdNotify is replaced in tests.
var sdNotify = daemon.SdNotify

func newDaemonCmd(ctx *context) *cobra.Command {
	var (
		configPath string
		envs       []string
	)
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the supervisor in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := exportEnv(envs); err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Control.Addr = *ctx.addr
			}

			logging.Initialize(logging.Config{
				Level:        cfg.Logging.Level,
				Format:       cfg.Logging.Format,
				Modules:      cfg.Logging.Modules,
				File:         cfg.Logging.File,
				FileMaxBytes: int64(cfg.Logging.FileMaxBytes),
				FileBackups:  cfg.Logging.FileBackups,
			})
			defer logging.Close()
			logger := logging.GetLogger("daemon")

			var srv *httpapi.Server
			sup, err := engine.New(cfg, engine.Options{
				Logger: logging.GetLogger("engine"),
				OnReady: func() {
					logger.Info("Control API listening", "addr", srv.Addr(), "config", cfg.Path)
					notify(logger, daemon.SdNotifyReady)
				},
			})
			if err != nil {
				return err
			}
			srv, err = httpapi.NewServer(httpapi.Config{Addr: cfg.Control.Addr, Controller: sup})
			if err != nil {
				return err
			}

			err = sup.Run(cmd.Context(), srv)
			notify(logger, daemon.SdNotifyStopping)
			return err
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "procsup.yaml", "Path to the supervisor configuration")
	cmd.Flags().StringArrayVar(&envs, "env", nil, "Environment variable as NAME=VALUE, exported as ENV_NAME (repeatable)")
	return cmd
}

// exportEnv publishes --env values so the configuration can reference them
// as %(ENV_NAME)s.
func exportEnv(values []string) error {
	for _, kv := range values {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("invalid --env value %q: expected NAME=VALUE", kv)
		}
		if err := os.Setenv(config.EnvOverride(name), value); err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
	}
	return nil
}

func notify(logger *slog.Logger, state string) {
	if _, err := sdNotify(false, state); err != nil {
		logger.Warn("systemd notification failed", "state", state, "error", err)
	}
}
