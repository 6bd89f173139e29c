package main

import (
	"fmt"
	"time"

	"agentfleet/cmd/agentfleet/ui"

	"github.com/spf13/cobra"
)

// timeRound is the display precision for durations in CLI output.
const timeRound = 10 * time.Millisecond

func registryCmd(socketFlag, contextFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the stored container configuration",
	}
	cmd.AddCommand(registryListCmd(socketFlag, contextFlag))
	cmd.AddCommand(registryPruneCmd(socketFlag, contextFlag))
	return cmd
}

func registryListCmd(socketFlag, contextFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored container records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect(*socketFlag, *contextFlag)
			if err != nil {
				return err
			}
			defer client.Close()

			records, err := client.Registry(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println(ui.Muted("registry is empty"))
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.Name,
					rec.Image,
					string(rec.AuthMode),
					rec.TokenRef,
					rec.ServerID,
					rec.WorkspacePath,
				})
			}
			fmt.Println(ui.Table(
				[]string{"NAME", "IMAGE", "AUTH", "TOKEN REF", "SERVER", "WORKSPACE"},
				rows,
			))
			return nil
		},
	}
}

func registryPruneCmd(socketFlag, contextFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prune <name>",
		Short: "Delete a stored record (the container itself is untouched)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(*socketFlag, *contextFlag)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Prune(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("record %s deleted", args[0]))
			return nil
		},
	}
}
