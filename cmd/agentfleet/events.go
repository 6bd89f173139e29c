package main

import (
	"fmt"

	"agentfleet/cmd/agentfleet/ui"

	"github.com/spf13/cobra"
)

func eventsCmd(socketFlag, contextFlag *string) *cobra.Command {
	var (
		container string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent lifecycle events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect(*socketFlag, *contextFlag)
			if err != nil {
				return err
			}
			defer client.Close()

			events, err := client.Events(cmd.Context(), container, limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println(ui.Muted("no events recorded"))
				return nil
			}

			rows := make([][]string, 0, len(events))
			for _, ev := range events {
				outcome := ui.SuccessMsg("ok")
				if ev.Error != "" {
					outcome = ui.ErrorMsg("%s", ev.Error)
				}
				rows = append(rows, []string{
					ev.At.Local().Format("2006-01-02 15:04:05"),
					ev.Container,
					ev.Op,
					ev.Action,
					outcome,
					ev.Detail,
				})
			}
			fmt.Println(ui.Table(
				[]string{"TIME", "CONTAINER", "OP", "ACTION", "RESULT", "DETAIL"},
				rows,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&container, "container", "", "only show events for this container")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of events to show")
	return cmd
}
