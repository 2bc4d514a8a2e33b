package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sift-agent/src/broker"
	"sift-agent/src/contracts"
	"sift-agent/src/github"
	"sift-agent/src/provider"
)

var (
	submitProvider string
	submitNumber   int
	submitHeadSHA  string
	submitPriority int
	submitDiffPath string
)

var submitCmd = &cobra.Command{
	Use:   "submit owner/repo",
	Short: "Queue a review job for a pull request",
	Long: `Publishes a review request to the queue, as a webhook delivery would.
Requires a persistent broker (SIFT_BROKERS) so a separate worker can pick
the job up.

Example:
  sift submit acme/api --number 42 --head-sha 1a2b3c4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if devMode(appConfig) {
			return fmt.Errorf("submit needs SIFT_BROKERS; the in-memory queue does not outlive this process")
		}

		owner, repo, err := splitRepo(args[0])
		if err != nil {
			return err
		}
		if submitNumber <= 0 {
			return fmt.Errorf("--number is required")
		}
		if err := checkProvider(submitProvider); err != nil {
			return err
		}

		req := contracts.ReviewRequest{
			Provider: submitProvider,
			Owner:    owner,
			Repo:     repo,
			Number:   submitNumber,
			HeadSHA:  submitHeadSHA,
			Priority: submitPriority,
		}
		if submitDiffPath != "" {
			if req.Diff, err = readDiff(submitDiffPath, cmd.InOrStdin()); err != nil {
				return err
			}
		}

		ctx, stop := signalContext()
		defer stop()

		log := newLogger(appConfig, nil)
		b, err := newBroker(appConfig, log)
		if err != nil {
			return fmt.Errorf("failed to connect to broker: %w", err)
		}
		defer b.Close()

		job, err := broker.PublishJob(ctx, b, req)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as %s\n", req.Ref(), job.MessageID)
		return nil
	},
}

// checkProvider rejects names no worker could resolve. Submitted jobs always
// target a persistent broker, so the dev-only local adapter is not accepted.
func checkProvider(name string) error {
	if name != github.ProviderName {
		return fmt.Errorf("%w: %q", provider.ErrUnknownProvider, name)
	}
	return nil
}

func splitRepo(s string) (owner, repo string, err error) {
	owner, repo, _ = strings.Cut(s, "/")
	if owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository must be owner/repo, got %q", s)
	}
	return owner, repo, nil
}

func init() {
	submitCmd.Flags().StringVar(&submitProvider, "provider", github.ProviderName, "Provider that hosts the repository")
	submitCmd.Flags().IntVarP(&submitNumber, "number", "n", 0, "Pull request number")
	submitCmd.Flags().StringVar(&submitHeadSHA, "head-sha", "", "Head commit to review")
	submitCmd.Flags().IntVar(&submitPriority, "priority", 0, "Job priority (higher is more urgent)")
	submitCmd.Flags().StringVar(&submitDiffPath, "diff", "", "Inline the diff from this file instead of fetching it")
}
