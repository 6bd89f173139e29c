package main

import (
	"fmt"
	"time"

	"agentfleet/cmd/agentfleet/ui"

	"github.com/spf13/cobra"
)

func statusCmd(socketFlag, contextFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List managed containers and their live status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect(*socketFlag, *contextFlag)
			if err != nil {
				return err
			}
			defer client.Close()

			views, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if len(views) == 0 {
				fmt.Println(ui.Muted("no managed containers"))
				return nil
			}

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				created := ""
				if !v.Created.IsZero() {
					created = v.Created.Local().Format(time.DateTime)
				}
				rows = append(rows, []string{
					v.Name,
					ui.Status(v.Status.String()),
					v.Image,
					string(v.AuthMode),
					created,
					ui.Bool(v.Registered),
				})
			}
			fmt.Println(ui.Table(
				[]string{"NAME", "STATUS", "IMAGE", "AUTH", "CREATED", "REGISTERED"},
				rows,
			))
			return nil
		},
	}
}
