package main

import (
	"context"
	"fmt"
	"os"

	"agentfleet"
	"agentfleet/cmd/agentfleet/ui"
	"agentfleet/fleet"
	"agentfleet/template"

	"github.com/spf13/cobra"
)

// launchFlags maps CLI flags onto launch overrides.
type launchFlags struct {
	image         string
	authMode      string
	tokenRef      string
	serverID      string
	workspacePath string
	mcpConfig     string
	envRefs       []string
	templatePath  string
	service       string
}

func (f *launchFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.image, "image", "", "Container image")
	cmd.Flags().StringVar(&f.authMode, "auth-mode", "", "Credential source: oauth or api_key")
	cmd.Flags().StringVar(&f.tokenRef, "token-ref", "", "Secret slot name for the platform token")
	cmd.Flags().StringVar(&f.serverID, "server-id", "", "Platform server identifier")
	cmd.Flags().StringVar(&f.workspacePath, "workspace", "", "Host workspace path")
	cmd.Flags().StringVar(&f.mcpConfig, "mcp-config", "", "Host MCP config file (mounted read-only)")
	cmd.Flags().StringSliceVar(&f.envRefs, "env-ref", nil, "Extra secret slot names to pass through")
	cmd.Flags().StringVar(&f.templatePath, "template", "", "Compose launch template file")
	cmd.Flags().StringVar(&f.service, "service", "", "Template service name (defaults to the container name)")
}

// env builds the launch overrides. Template values apply first, flags win.
func (f *launchFlags) env(ctx context.Context, name string) (fleet.LaunchEnv, error) {
	var env fleet.LaunchEnv

	if f.templatePath != "" {
		data, err := os.ReadFile(f.templatePath)
		if err != nil {
			return env, fmt.Errorf("read template: %w", err)
		}
		tpl, err := template.Load(ctx, data)
		if err != nil {
			return env, err
		}
		service := f.service
		if service == "" {
			service = name
		}
		env, err = tpl.LaunchEnv(service)
		if err != nil {
			return env, err
		}
	}

	if f.image != "" {
		env.Image = f.image
	}
	if f.authMode != "" {
		env.AuthMode = agentfleet.AuthMode(f.authMode)
	}
	if f.tokenRef != "" {
		env.TokenRef = f.tokenRef
	}
	if f.serverID != "" {
		env.ServerID = f.serverID
	}
	if f.workspacePath != "" {
		env.WorkspacePath = f.workspacePath
	}
	if f.mcpConfig != "" {
		env.MCPConfig = f.mcpConfig
	}
	if len(f.envRefs) > 0 {
		env.EnvRefs = append(env.EnvRefs, f.envRefs...)
	}
	return env, nil
}

func launchCmd(socketFlag, contextFlag *string) *cobra.Command {
	var flags launchFlags

	cmd := &cobra.Command{
		Use:   "launch <name>",
		Short: "Create or start an agent container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			env, err := flags.env(cmd.Context(), name)
			if err != nil {
				return err
			}

			client, err := connect(*socketFlag, *contextFlag)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Launch(cmd.Context(), name, env)
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("%s %s (%s)", name, res.Action, shortID(res.ID)))
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func shutdownCmd(socketFlag, contextFlag *string) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "shutdown <name>",
		Short: "Stop an agent container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(*socketFlag, *contextFlag)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Shutdown(cmd.Context(), args[0], remove)
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("%s %s", args[0], res.Action))
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "Also remove the container (registry record stays)")
	return cmd
}

func restartCmd(socketFlag, contextFlag *string) *cobra.Command {
	var flags launchFlags

	cmd := &cobra.Command{
		Use:   "restart <name>",
		Short: "Stop then launch an agent container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			env, err := flags.env(cmd.Context(), name)
			if err != nil {
				return err
			}

			client, err := connect(*socketFlag, *contextFlag)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Restart(cmd.Context(), name, env)
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("%s restarted (%s)", name, shortID(res.ID)))
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
