package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sift-agent/src/webhook"
)

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive provider webhooks and queue review jobs",
	Long: `Starts the webhook server. Deliveries to POST /webhooks/{provider} are
verified, parsed, and published to the review request topic.

Without SIFT_BROKERS the queue lives in memory, so a worker is started in
the same process and a "local" provider accepts unsigned JSON requests:

  curl -X POST localhost:8080/webhooks/local \
    -d '{"owner":"acme","repo":"api","number":1,"diff":"..."}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, appConfig, appOptions{broker: true, providers: true})
		if err != nil {
			return err
		}
		defer a.Close()

		srv := webhook.NewServer(a.cfg.ListenAddr, a.providers, a.broker, a.log)

		workerDone := make(chan error, 1)
		if serveWithWorker || devMode(a.cfg) {
			w := newWorker(a)
			go func() { workerDone <- w.Run(ctx, 30*time.Second) }()
		} else {
			close(workerDone)
		}

		serveErr := make(chan error, 1)
		go func() { serveErr <- srv.Start() }()

		select {
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("webhook server failed: %w", err)
			}
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("[Sift] Webhook server shutdown: %v", err)
		}
		stop()
		return <-workerDone
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "Also run a worker in this process")
}
