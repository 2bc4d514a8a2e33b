// Package main provides the sift command: the review worker, the webhook
// server, local reviews, and the MCP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sift-agent/src/config"
	"sift-agent/src/provider"
)

// version is overridden at build time with -ldflags.
var version = "dev"

var (
	// Application configuration, loaded before any subcommand runs.
	appConfig *config.Config

	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "sift",
	Short: "Sift - automated code review for pull requests",
	Long: `Sift reviews pull request diffs with a pipeline of detectors
(security, logic, style, and anti-patterns), filters and validates the
findings, and posts them back to the hosting provider.

Deployment:
- sift serve: receives provider webhooks and queues review jobs
- sift worker: consumes review jobs and runs the pipeline

Local use:
- sift review: reviews a diff from a file or stdin
- sift mcp: exposes the reviewer to coding agents over MCP`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		appConfig = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (environment variables take precedence)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, provider.WrapError(err))
		os.Exit(1)
	}
}
