package main

import (
	"fmt"
	"os"
	"strings"

	"agentfleet/cmd/agentfleet/ui"

	"github.com/spf13/cobra"
)

func execCmd(socketFlag, contextFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <name> <command...>",
		Short: "Run a command inside an agent container through the gateway",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			text := strings.Join(args[1:], " ")

			client, err := connect(*socketFlag, *contextFlag)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.Exec(cmd.Context(), name, text)
			if err != nil {
				return err
			}

			if result.Stdout != "" {
				fmt.Print(result.Stdout)
			}
			if result.Stderr != "" {
				fmt.Fprint(os.Stderr, result.Stderr)
			}
			if result.Detail == "timed out" {
				fmt.Println(ui.WarnMsg("command timed out after %s", result.Elapsed.Round(timeRound)))
				return nil
			}
			if !result.Succeeded {
				fmt.Println(ui.WarnMsg("exit code %d", result.ExitCode))
			}
			return nil
		},
	}
}
