package main

import (
	"github.com/spf13/cobra"

	"sift-agent/src/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the reviewer to coding agents over MCP (stdio)",
	Long: `Runs a Model Context Protocol server on stdin/stdout with two tools:

  review_diff          review a unified diff and return tiered findings
  get_finding_details  expand one finding from a previous review

Logs go to stderr so they never interleave with the protocol stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, appConfig, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		return mcp.NewServer(a.pipeline, version, a.log).Run()
	},
}
