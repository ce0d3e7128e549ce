package main

import (
	"github.com/spf13/cobra"
)

// simplepos migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run all pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return delegate(cmd, "migrate")
	},
}

// simplepos migrate:rollback
var migrateRollbackCmd = &cobra.Command{
	Use:   "migrate:rollback",
	Short: "Roll back the last batch of migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return delegate(cmd, "migrate:rollback")
	},
}

// simplepos migrate:status
var migrateStatusCmd = &cobra.Command{
	Use:   "migrate:status",
	Short: "Show the status of each migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return delegate(cmd, "migrate:status")
	},
}

// simplepos seed
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Migrate, then run all database seeders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return delegate(cmd, "seed")
	},
}
