package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dbaas.io/workflow/internal/workflow"
	"dbaas.io/workflow/internal/workflow/steps"
)

func init() {
	checkCmd.Flags().Int64("instance", 0, "The id of the instance to check.")
	checkCmd.Flags().Bool("migration", false, "Check the migration target instead of the current host.")
	checkCmd.Flags().StringSlice("app", nil, "Applications to bind once the VM is confirmed. Rolled back if a later step fails.")
	_ = checkCmd.MarkFlagRequired("instance")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the host check pipeline for one instance and print its report.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		s, err := newSession(command)
		if err != nil {
			return err
		}
		defer s.close()

		instanceID, _ := command.Flags().GetInt64("instance")
		migration, _ := command.Flags().GetBool("migration")
		apps, _ := command.Flags().GetStringSlice("app")

		sc, err := instanceStepContext(s, instanceID, migration)
		if err != nil {
			return err
		}

		pipeline := workflow.NewPipeline(fmt.Sprintf("check_instance_%d", instanceID),
			workflow.ForInstance(steps.NewCheckHostVM(sc, s.app.Providers)),
			workflow.ForInstance(steps.NewBindACL(sc, s.app.Providers, apps...)),
		)

		report, runErr := s.app.Runner.Run(s.ctx, pipeline, workflow.State{})
		if report != nil {
			if err := printJSON(report); err != nil {
				return err
			}
		}
		return runErr
	},
}
