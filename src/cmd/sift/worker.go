package main

import (
	"time"

	"github.com/spf13/cobra"

	"sift-agent/src/worker"
)

var workerDrainTimeout time.Duration

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume review jobs from the queue",
	Long: `Subscribes to the review request topic and runs the review pipeline
for each job. Failed jobs are retried with exponential backoff and moved to
the dead-letter topic once retries are exhausted.

On SIGINT or SIGTERM the worker stops taking jobs and waits up to
--drain-timeout for in-flight reviews; anything still running is cancelled
and left for redelivery.

Example:
  SIFT_BROKERS=localhost:9092 sift worker`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, appConfig, appOptions{broker: true, providers: true})
		if err != nil {
			return err
		}
		defer a.Close()

		return newWorker(a).Run(ctx, workerDrainTimeout)
	},
}

func newWorker(a *app) *worker.Worker {
	return worker.New(a.broker, a.pipeline, worker.Config{
		MaxConcurrency: a.cfg.MaxConcurrency,
		MaxOutstanding: a.cfg.MaxOutstanding,
		MaxRetries:     a.cfg.MaxRetries,
	}, a.log)
}

func init() {
	workerCmd.Flags().DurationVar(&workerDrainTimeout, "drain-timeout", 30*time.Second, "How long to wait for in-flight jobs on shutdown")
}
