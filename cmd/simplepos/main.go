package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/simplepos/shell/config"
	"github.com/simplepos/shell/internal/profile"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

var profileName string

var rootCmd = &cobra.Command{
	Use:           "simplepos",
	Short:         "SimplePOS till CLI",
	Long:          "Run, migrate, back up and update a SimplePOS till.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}
		if profileName != "" {
			config.Set("APP_PROFILE", profileName)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "application profile: native or bistro (default APP_PROFILE)")

	// Server
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routeListCmd)
	rootCmd.AddCommand(commandsCmd)

	// Database
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(migrateRollbackCmd)
	rootCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(backupRestoreCmd)

	// Devices and maintenance
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(updateCheckCmd)
	rootCmd.AddCommand(versionCmd)
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if e, ok := err.(*exitError); ok && e.code != 0 {
		return e.code
	}
	return 1
}

// delegate runs an app sub-command, so the CLI and the app binaries share
// one implementation.
func delegate(cmd *cobra.Command, sub string) error {
	a, err := profile.Current()
	if err != nil {
		return err
	}
	code, err := a.Output(cmd.OutOrStdout()).Execute(cmd.Context(), []string{sub})
	if err != nil || code != 0 {
		return &exitError{code: code, err: err}
	}
	return nil
}
