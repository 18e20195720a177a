// Package cmd provides the CLI commands for the accountgate demo service.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/account-gate/accountgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "accountgate",
	Short: "AccountGate - internal-service authentication demo",
	Long: `AccountGate is an internal-service authentication SDK. This binary runs a
demo service protected by the SDK's validation pipeline: it loads accounts
from the configured backend, verifies bearer/cookie tokens, enforces
session/account consistency, and redirects on token expiry.

Quick start:
  1. Create a config file: accountgate.yaml
  2. Run: accountgate serve

Configuration:
  Config is loaded from accountgate.yaml in the current directory,
  $HOME/.accountgate/, or /etc/accountgate/.

  Environment variables can override config values with the ACCOUNTGATE_ prefix.
  Example: ACCOUNTGATE_BACKEND_HTTP_BASE_URL=http://accounts.internal:7000

Commands:
  serve        Start the demo service
  config       Print the effective configuration
  fingerprint  Print the log fingerprint of a token
  version      Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./accountgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
