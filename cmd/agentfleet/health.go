package main

import (
	"fmt"

	"agentfleet"
	"agentfleet/cmd/agentfleet/ui"

	"github.com/spf13/cobra"
)

func healthCmd(socketFlag, contextFlag *string) *cobra.Command {
	var last bool

	cmd := &cobra.Command{
		Use:   "health <name>",
		Short: "Run the probe battery against an agent container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(*socketFlag, *contextFlag)
			if err != nil {
				return err
			}
			defer client.Close()

			var report agentfleet.HealthReport
			if last {
				report, err = client.LastHealth(cmd.Context(), args[0])
			} else {
				report, err = client.Health(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			if last && !report.CheckedAt.IsZero() {
				fmt.Println(ui.Muted("checked " + report.CheckedAt.Local().Format("2006-01-02 15:04:05")))
			}
			for _, probe := range report.Probes {
				line := probeLine(probe)
				fmt.Println(line)
			}
			if report.Passed {
				fmt.Println(ui.SuccessMsg("%s healthy", report.Container))
				return nil
			}
			fmt.Println(ui.WarnMsg("%s unhealthy", report.Container))
			return nil
		},
	}
	cmd.Flags().BoolVar(&last, "last", false, "Show the stored report from the last run instead of probing")
	return cmd
}

func probeLine(p agentfleet.ProbeResult) string {
	detail := p.Detail
	if detail != "" {
		detail = "  " + ui.Muted(detail)
	}
	elapsed := ""
	if p.Elapsed > 0 {
		elapsed = "  " + ui.Muted(p.Elapsed.String())
	}

	switch p.Status {
	case agentfleet.ProbePassed:
		return ui.SuccessMsg("%s%s", p.Name, elapsed)
	case agentfleet.ProbeFailed:
		return ui.ErrorMsg("%s%s%s", p.Name, detail, elapsed)
	default:
		return ui.WarnMsg("%s skipped%s", p.Name, detail)
	}
}
