package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dbaas.io/workflow/internal/stepcontext"
)

func init() {
	vmCmd.Flags().Int64("instance", 0, "The id of the instance whose host VM is fetched.")
	vmCmd.Flags().Bool("migration", false, "Resolve the migration target host instead of the current one.")
	_ = vmCmd.MarkFlagRequired("instance")

	offeringCmd.Flags().String("env", "", "The environment name to query.")
	offeringCmd.Flags().Int("cpus", 0, "Number of vCPUs.")
	offeringCmd.Flags().Int("memory", 0, "Memory size as the provider expects it.")
	_ = offeringCmd.MarkFlagRequired("env")
	_ = offeringCmd.MarkFlagRequired("cpus")
	_ = offeringCmd.MarkFlagRequired("memory")
}

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Show the compute provider's view of an instance's host VM.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		s, err := newSession(command)
		if err != nil {
			return err
		}
		defer s.close()

		instanceID, _ := command.Flags().GetInt64("instance")
		migration, _ := command.Flags().GetBool("migration")
		sc, err := instanceStepContext(s, instanceID, migration)
		if err != nil {
			return err
		}

		host, err := sc.Host(s.ctx)
		if err != nil {
			return fmt.Errorf("resolve host: %w", err)
		}
		env, err := sc.Environment(s.ctx)
		if err != nil {
			return fmt.Errorf("resolve environment: %w", err)
		}
		if host == nil || env == nil {
			return fmt.Errorf("instance %d has no host or environment", instanceID)
		}

		vm, err := s.app.Providers.Host(env).GetVMByHost(s.ctx, host)
		if err != nil {
			return fmt.Errorf("get vm: %w", err)
		}
		if vm == nil {
			return fmt.Errorf("compute provider has no vm for host %s", host.Hostname)
		}
		return printJSON(map[string]interface{}{
			"host":        host,
			"environment": env.Name,
			"vm":          vm,
		})
	},
}

var offeringCmd = &cobra.Command{
	Use:   "offering",
	Short: "Resolve the compute offering for a cpus/memory pair.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		s, err := newSession(command)
		if err != nil {
			return err
		}
		defer s.close()

		envName, _ := command.Flags().GetString("env")
		cpus, _ := command.Flags().GetInt("cpus")
		memory, _ := command.Flags().GetInt("memory")

		env, err := s.app.DB.Store.GetEnvironmentByName(s.ctx, envName)
		if err != nil {
			return fmt.Errorf("get environment %s: %w", envName, err)
		}
		id, found, err := s.app.Providers.Host(env).GetOfferingID(s.ctx, cpus, memory)
		if err != nil {
			return fmt.Errorf("get offering: %w", err)
		}
		if !found {
			return fmt.Errorf("no offering for %d cpus and %d memory in %s", cpus, memory, envName)
		}
		return printJSON(map[string]string{"offering_id": id})
	},
}

// instanceStepContext builds the step context for an instance, optionally
// redirected to its migration targets.
func instanceStepContext(s *session, instanceID int64, migration bool) (stepcontext.Context, error) {
	st := s.app.DB.Store
	instance, err := st.GetInstance(s.ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("get instance %d: %w", instanceID, err)
	}
	var sc stepcontext.Context = stepcontext.NewInstanceContext(instance, st)
	if migration {
		sc = stepcontext.NewMigrationContext(sc, st)
	}
	return sc, nil
}
