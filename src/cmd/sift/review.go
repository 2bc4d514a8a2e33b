package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"sift-agent/src/mcp"
	"sift-agent/src/pipeline"
	"sift-agent/src/review"
	"sift-agent/src/tui"
)

var (
	reviewRepo   string
	reviewTitle  string
	reviewFormat string
	reviewTUI    bool
	reviewStrict bool
)

// errChangesRequested makes --strict exit non-zero without printing usage.
var errChangesRequested = errors.New("review requested changes")

var reviewCmd = &cobra.Command{
	Use:   "review [diff-file]",
	Short: "Review a local diff",
	Long: `Runs the review pipeline on a unified diff read from a file, or from
stdin when no file (or "-") is given. Nothing is posted to a provider.

Example:
  git diff main | sift review
  sift review changes.diff --repo acme/api --format json
  git diff main | sift review --tui`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		if reviewTUI && path == "-" {
			return fmt.Errorf("--tui needs a diff file; stdin is used by the terminal")
		}
		diff, err := readDiff(path, cmd.InOrStdin())
		if err != nil {
			return err
		}

		req, err := mcp.LocalRequest(diff, reviewRepo, reviewTitle)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		if reviewTUI {
			return runReviewTUI(ctx, req.Ref(), func(a *app) (*pipeline.ReviewRecord, error) {
				return a.pipeline.Run(ctx, req)
			})
		}

		a, err := newApp(ctx, appConfig, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.pipeline.Run(ctx, req)
		if rec == nil {
			return err
		}
		if printErr := printRecord(cmd.OutOrStdout(), rec, reviewFormat); printErr != nil {
			return printErr
		}
		if err != nil {
			return err
		}
		if reviewStrict && !rec.Passed {
			return errChangesRequested
		}
		return nil
	},
}

// runReviewTUI builds a silent app so logs do not corrupt the display, and
// streams stage progress into the interface.
func runReviewTUI(ctx context.Context, title string, run func(a *app) (*pipeline.ReviewRecord, error)) error {
	return tui.Start(title, func(send func(tea.Msg)) (*pipeline.ReviewRecord, error) {
		a, err := newApp(ctx, appConfig, appOptions{
			logOutput: io.Discard,
			observers: []pipeline.Observer{tui.ProgressObserver(send)},
		})
		if err != nil {
			return nil, err
		}
		defer a.Close()
		return run(a)
	})
}

func readDiff(path string, stdin io.Reader) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read diff: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("diff is empty")
	}
	return string(data), nil
}

func printRecord(w io.Writer, rec *pipeline.ReviewRecord, format string) error {
	switch format {
	case "json":
		manifest, _ := mcp.Tier(rec, len(rec.Validated))
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	case "text", "":
		fmt.Fprint(w, formatText(rec))
		return nil
	}
	return fmt.Errorf("unknown format %q (want text or json)", format)
}

// formatText renders findings grouped under their file, in severity order.
func formatText(rec *pipeline.ReviewRecord) string {
	var b strings.Builder

	var files []string
	byFile := make(map[string][]review.Finding)
	for _, f := range rec.Validated {
		if _, seen := byFile[f.FilePath]; !seen {
			files = append(files, f.FilePath)
		}
		byFile[f.FilePath] = append(byFile[f.FilePath], f)
	}

	for _, file := range files {
		fmt.Fprintf(&b, "%s\n", file)
		for _, f := range byFile[file] {
			fmt.Fprintf(&b, "  %d: [%s] %s (%s)\n", f.LineNumber, f.Severity, f.Message, f.Category)
			if f.SuggestedFix != "" {
				for _, line := range strings.Split(f.SuggestedFix, "\n") {
					fmt.Fprintf(&b, "      > %s\n", line)
				}
			}
		}
		b.WriteString("\n")
	}

	if rec.Error != "" {
		fmt.Fprintf(&b, "Review failed at %s: %s\n", rec.Metadata.FailedStage, rec.Error)
	} else if rec.ShouldStop {
		fmt.Fprintf(&b, "Review stopped: %s\n", rec.StopReason)
	}
	if rec.Summary != "" {
		fmt.Fprintln(&b, rec.Summary)
	}
	return b.String()
}

func init() {
	reviewCmd.Flags().StringVar(&reviewRepo, "repo", "", "Repository as owner/name, used to resolve per-repository configuration")
	reviewCmd.Flags().StringVar(&reviewTitle, "title", "", "Short description of the change")
	reviewCmd.Flags().StringVarP(&reviewFormat, "format", "f", "text", "Output format: text or json")
	reviewCmd.Flags().BoolVar(&reviewTUI, "tui", false, "Browse findings in an interactive terminal UI")
	reviewCmd.Flags().BoolVar(&reviewStrict, "strict", false, "Exit non-zero when the review requests changes")
}
