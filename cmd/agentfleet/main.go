package main

import (
	"fmt"
	"os"

	"agentfleet/cmd/agentfleet/ui"
	"agentfleet/config"
	"agentfleet/internal/buildinfo"
	"agentfleet/internal/logging"
	"agentfleet/sdk"

	"github.com/spf13/cobra"
)

func main() {
	var (
		debug       bool
		socket      string
		contextName string
	)
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "agentfleet",
		Short:         "Manage a fleet of agent-hosting containers",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			ui.Configure()
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&socket, "socket", "", "Daemon unix socket path")
	root.PersistentFlags().StringVar(&contextName, "context", "", "Config context name to use")

	root.AddCommand(statusCmd(&socket, &contextName))
	root.AddCommand(launchCmd(&socket, &contextName))
	root.AddCommand(shutdownCmd(&socket, &contextName))
	root.AddCommand(restartCmd(&socket, &contextName))
	root.AddCommand(healthCmd(&socket, &contextName))
	root.AddCommand(execCmd(&socket, &contextName))
	root.AddCommand(registryCmd(&socket, &contextName))
	root.AddCommand(eventsCmd(&socket, &contextName))
	root.AddCommand(doctorCmd(&socket, &contextName))
	root.AddCommand(contextCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		os.Exit(1)
	}
}

// connect resolves the daemon socket from the --socket flag, the selected
// config context, or the platform default, in that order.
func connect(socketFlag, contextFlag string) (*sdk.Client, error) {
	if socketFlag != "" {
		return sdk.Dial(socketFlag), nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if contextFlag != "" {
		ctx, ok := cfg.Contexts[contextFlag]
		if !ok {
			return nil, fmt.Errorf("context %q not found", contextFlag)
		}
		return sdk.Dial(ctx.Socket), nil
	}
	if _, ctx, ok := cfg.Current(); ok && ctx.Socket != "" {
		return sdk.Dial(ctx.Socket), nil
	}
	return sdk.Dial(config.DefaultSocketPath), nil
}
