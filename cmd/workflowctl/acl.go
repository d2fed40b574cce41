package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dbaas.io/workflow/internal/domain"
)

func init() {
	aclRulesCmd.Flags().Int64("instance", 0, "The id of an instance of the database.")
	aclRulesCmd.Flags().String("app", "", "Narrow the lookup to one application.")
	_ = aclRulesCmd.MarkFlagRequired("instance")

	aclAddCmd.Flags().Int64("instance", 0, "The id of the instance whose host is opened.")
	aclAddCmd.Flags().String("app", "", "The application to bind.")
	_ = aclAddCmd.MarkFlagRequired("instance")
	_ = aclAddCmd.MarkFlagRequired("app")

	aclRemoveCmd.Flags().Int64("instance", 0, "The id of an instance of the database.")
	aclRemoveCmd.Flags().String("app", "", "The application to unbind.")
	_ = aclRemoveCmd.MarkFlagRequired("instance")
	_ = aclRemoveCmd.MarkFlagRequired("app")

	aclCmd.AddCommand(aclRulesCmd)
	aclCmd.AddCommand(aclAddCmd)
	aclCmd.AddCommand(aclRemoveCmd)
}

var aclCmd = &cobra.Command{
	Use:   "acl",
	Short: "Manipulate network ACL rules binding applications to databases.",
}

var aclRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the ACL rules of a database.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		s, err := newSession(command)
		if err != nil {
			return err
		}
		defer s.close()

		t, err := aclTargetFor(command, s)
		if err != nil {
			return err
		}
		appName, _ := command.Flags().GetString("app")

		lookup, err := s.app.Providers.ACL(t.env).GetRule(s.ctx, t.db, appName)
		if err != nil {
			return fmt.Errorf("lookup rules: %w", err)
		}
		if !lookup.OK() {
			return fmt.Errorf("acl lookup returned status %d: %s", lookup.StatusCode, lookup.Body)
		}
		rules, err := lookup.Rules()
		if err != nil {
			return err
		}
		return printJSON(rules)
	},
}

var aclAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Allow an application to reach an instance's host.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		s, err := newSession(command)
		if err != nil {
			return err
		}
		defer s.close()

		t, err := aclTargetFor(command, s)
		if err != nil {
			return err
		}
		if t.host == nil {
			return fmt.Errorf("instance has no host")
		}
		appName, _ := command.Flags().GetString("app")

		result, err := s.app.Providers.ACL(t.env).AddACL(s.ctx, t.db, appName, t.host.Hostname)
		if err != nil {
			return fmt.Errorf("add acl: %w", err)
		}
		if err := printJSON(result); err != nil {
			return err
		}
		if !result.Accepted {
			return fmt.Errorf("acl rejected with status %d", result.StatusCode)
		}
		return nil
	},
}

var aclRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Delete every ACL rule binding an application to a database.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		s, err := newSession(command)
		if err != nil {
			return err
		}
		defer s.close()

		t, err := aclTargetFor(command, s)
		if err != nil {
			return err
		}
		appName, _ := command.Flags().GetString("app")

		result, err := s.app.Providers.ACL(t.env).RemoveACL(s.ctx, t.db, appName)
		if err != nil {
			return fmt.Errorf("remove acl: %w", err)
		}
		return printJSON(result)
	},
}

// aclTarget is what the acl subcommands act on.
type aclTarget struct {
	env  *domain.Environment
	db   *domain.Database
	host *domain.Host
}

func aclTargetFor(command *cobra.Command, s *session) (*aclTarget, error) {
	instanceID, _ := command.Flags().GetInt64("instance")
	sc, err := instanceStepContext(s, instanceID, false)
	if err != nil {
		return nil, err
	}
	db, err := sc.Database(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve database: %w", err)
	}
	env, err := sc.Environment(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve environment: %w", err)
	}
	if db == nil || env == nil {
		return nil, fmt.Errorf("instance %d has no database or environment", instanceID)
	}
	host, err := sc.Host(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve host: %w", err)
	}
	return &aclTarget{env: env, db: db, host: host}, nil
}
