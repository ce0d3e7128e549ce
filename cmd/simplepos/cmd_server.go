package main

import (
	"github.com/spf13/cobra"
)

// simplepos serve
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run", "start"},
	Short:   "Boot the plugins and serve the bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		return delegate(cmd, "serve")
	},
}

// simplepos route:list
var routeListCmd = &cobra.Command{
	Use:   "route:list",
	Short: "List the bridge routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return delegate(cmd, "route:list")
	},
}

// simplepos commands
var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the commands the webview can invoke",
	RunE: func(cmd *cobra.Command, args []string) error {
		return delegate(cmd, "commands")
	},
}
