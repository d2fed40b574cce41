// Package main is workflowctl, the operator tool for inspecting what the
// workflow engine sees: hosts and VMs at the compute provider, offerings,
// ACL rules, and dry pipeline runs against one instance.
//
// Import Path: dbaas.io/workflow/cmd/workflowctl
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dbaas.io/workflow/internal/app"
	"dbaas.io/workflow/internal/config"
	"dbaas.io/workflow/internal/pkg/logger"
)

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error.")
	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "Overall command timeout.")

	rootCmd.AddCommand(vmCmd)
	rootCmd.AddCommand(offeringCmd)
	rootCmd.AddCommand(aclCmd)
	rootCmd.AddCommand(checkCmd)
}

var rootCmd = &cobra.Command{
	Use:   "workflowctl",
	Short: "Inspect and exercise the DBaaS workflow engine against the live fleet.",
	PersistentPreRunE: func(command *cobra.Command, args []string) error {
		level, _ := command.Flags().GetString("log-level")
		return logger.Init(level, "console")
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session is the bootstrapped application plus a command-scoped context.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	app    *app.Application
}

func (s *session) close() {
	s.cancel()
	s.app.Shutdown()
}

func newSession(command *cobra.Command) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	timeout, _ := command.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(command.Context(), timeout)

	application, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &session{ctx: ctx, cancel: cancel, app: application}, nil
}

func printJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "    ")
	return encoder.Encode(data)
}
