// Package cmd provides the CLI commands for mcpgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpgate/mcpgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcpgate",
	Short: "mcpgate - authentication gateway for MCP tool routes",
	Long: `mcpgate is an authentication and authorization gateway for Model Context
Protocol (MCP) tool routes.

It authenticates inbound tool calls with a configurable decision chain
(skip-auth bypass, static bearer key, signed session tokens, per-user access
tokens), records every call in a queryable access log, and keeps its
settings file versioned with rotating content-hashed backups.

Quick start:
  1. Create a config file: mcpgate.yaml
  2. Run: mcpgate run

Configuration:
  Config is loaded from mcpgate.yaml in the current directory,
  $HOME/.mcpgate/, or /etc/mcpgate/.

  Environment variables can override config values with the MCPGATE_ prefix.
  Example: MCPGATE_SERVER_ADDR=0.0.0.0:8080

Commands:
  run         Start the gateway server
  token       Issue or revoke per-user access tokens
  backup      Create, list, or restore settings backups
  version     Print version information`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcpgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
