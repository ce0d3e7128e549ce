package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/simplepos/shell/config"
	"github.com/simplepos/shell/internal/profile"
	"github.com/simplepos/shell/pkg/auth"
	"github.com/simplepos/shell/pkg/escpos"
	"github.com/simplepos/shell/pkg/plugins/updater"
	"github.com/simplepos/shell/pkg/printer"
)

var printFlags struct {
	connection string
	file       string
	test       bool
	width      int
}

// simplepos print
var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Send raw ESC/POS bytes (or a test page) to a printer",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn := printFlags.connection
		if conn == "" {
			conn = config.PrinterReceipt()
		}

		var data []byte
		switch {
		case printFlags.test:
			data = escpos.TestPage(printFlags.width, conn, time.Now())
		case printFlags.file == "-":
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			data = b
		case printFlags.file != "":
			b, err := os.ReadFile(printFlags.file)
			if err != nil {
				return err
			}
			data = b
		default:
			return errors.New("print: pass --test or --file")
		}

		if err := printer.New(config.PrinterConnectTimeout()).PrintRaw(cmd.Context(), conn, data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅  %d bytes → %s\n", len(data), conn)
		return nil
	},
}

// simplepos token <client>
var tokenCmd = &cobra.Command{
	Use:   "token <client>",
	Short: "Issue a bridge token (requires BRIDGE_SECRET)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := auth.GenerateToken(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

// simplepos update:check
var updateCheckCmd = &cobra.Command{
	Use:   "update:check",
	Short: "Ask the release endpoint for a newer build",
	RunE: func(cmd *cobra.Command, args []string) error {
		upd, err := updater.FromConfig(profile.Version).Check(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if upd == nil {
			fmt.Fprintf(out, "Up to date (%s).\n", profile.Version)
			return nil
		}
		fmt.Fprintf(out, "Update available: %s → %s\n", upd.CurrentVersion, upd.Version)
		if upd.Notes != "" {
			fmt.Fprintln(out, upd.Notes)
		}
		return nil
	},
}

// simplepos version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "simplepos %s (%s, %s)\n", profile.Version, config.AppProfile(), updater.Target())
	},
}

func init() {
	f := printCmd.Flags()
	f.StringVar(&printFlags.connection, "connection", "", "printer descriptor, e.g. tcp:192.168.1.50:9100 (default PRINTER_RECEIPT)")
	f.StringVarP(&printFlags.file, "file", "f", "", "file with raw bytes, or - for stdin")
	f.BoolVar(&printFlags.test, "test", false, "print a test page")
	f.IntVar(&printFlags.width, "width", 48, "test page width in characters")
}
