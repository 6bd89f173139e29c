package main

import (
	"fmt"

	"agentfleet/cmd/agentfleet/ui"
	"agentfleet/config"
	"agentfleet/diag"
	"agentfleet/infra/dockerd"

	"github.com/spf13/cobra"
)

func doctorCmd(socketFlag, contextFlag *string) *cobra.Command {
	var dataRoot string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the host for anything that would break the fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			failed := 0

			docker, err := dockerd.NewClient()
			if err != nil {
				fmt.Println(ui.ErrorMsg("container engine: %v", err))
				fmt.Println(ui.Muted("  fix: start the Docker daemon or set DOCKER_HOST"))
				failed++
			} else {
				defer docker.Close()
				doctor := diag.New(dockerd.NewRuntime(docker), dataRoot)
				for _, check := range doctor.Run(cmd.Context()) {
					if check.Passed {
						fmt.Println(ui.SuccessMsg("%s: %s", check.Name, check.Detail))
						continue
					}
					failed++
					fmt.Println(ui.ErrorMsg("%s: %s", check.Name, check.Detail))
					if check.Fix != "" {
						fmt.Println(ui.Muted("  fix: " + check.Fix))
					}
				}
			}

			if client, err := connect(*socketFlag, *contextFlag); err == nil {
				version, pingErr := client.Ping(cmd.Context())
				client.Close()
				if pingErr != nil {
					failed++
					fmt.Println(ui.ErrorMsg("daemon: %v", pingErr))
					fmt.Println(ui.Muted("  fix: start agentfleetd or point --socket at its socket"))
				} else {
					fmt.Println(ui.SuccessMsg("daemon: reachable (version %s)", version))
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataRoot, "data-root", config.DefaultDataRoot, "daemon data directory to check")
	return cmd
}
