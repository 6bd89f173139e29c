package main

import (
	"fmt"
	"sort"

	"agentfleet/cmd/agentfleet/ui"
	"agentfleet/config"

	"github.com/spf13/cobra"
)

func contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage daemon connection contexts",
	}
	cmd.AddCommand(contextListCmd())
	cmd.AddCommand(contextSetCmd())
	cmd.AddCommand(contextUseCmd())
	cmd.AddCommand(contextRemoveCmd())
	return cmd
}

func contextListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured contexts",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(cfg.Contexts) == 0 {
				fmt.Println(ui.Muted("no contexts configured"))
				return nil
			}

			names := make([]string, 0, len(cfg.Contexts))
			for name := range cfg.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				current := ""
				if name == cfg.CurrentContext {
					current = "*"
				}
				rows = append(rows, []string{current, name, cfg.Contexts[name].Socket})
			}
			fmt.Println(ui.Table([]string{"", "NAME", "SOCKET"}, rows))
			return nil
		},
	}
}

func contextSetCmd() *cobra.Command {
	var socket string
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Add or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Set(args[0], config.Context{Socket: socket})
			if cfg.CurrentContext == "" {
				cfg.CurrentContext = args[0]
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("context %s saved", args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&socket, "socket", config.DefaultSocketPath, "daemon unix socket path")
	return cmd
}

func contextUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Switch the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Use(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("switched to context %s", args[0]))
			return nil
		},
	}
}

func contextRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Remove(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("context %s removed", args[0]))
			return nil
		},
	}
}
