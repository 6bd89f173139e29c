package main

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"agentfleet/config"
	"agentfleet/daemon"
	"agentfleet/internal/buildinfo"
	"agentfleet/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	if err := logging.Configure(logging.LevelInfo); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		socketPath string
		dataRoot   string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:     "agentfleetd",
		Short:   "Agent container fleet daemon",
		Version: buildinfo.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings(configPath)
			if err != nil {
				return err
			}
			if socketPath != "" {
				settings.Socket = socketPath
			}
			if dataRoot != "" {
				settings.DataRoot = dataRoot
			}
			if debug {
				settings.Debug = true
			}

			level := logging.LevelInfo
			if settings.Debug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return daemon.Run(ctx, settings)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultSettingsPath(), "Daemon settings file")
	cmd.Flags().StringVar(&socketPath, "socket", "", "Unix socket path (overrides settings)")
	cmd.Flags().StringVar(&dataRoot, "data-root", "", "State directory (overrides settings)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

func defaultSettingsPath() string {
	return filepath.Join(filepath.Dir(config.Path()), "daemon.yaml")
}
