package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sift-agent/src/broker"
	"sift-agent/src/config"
	"sift-agent/src/detect"
	"sift-agent/src/github"
	"sift-agent/src/inference"
	"sift-agent/src/logger"
	"sift-agent/src/pipeline"
	"sift-agent/src/provider"
	"sift-agent/src/review"
	"sift-agent/src/store"
	"sift-agent/src/validate"
)

// localProviderName is the adapter accepting unsigned JSON requests in
// development mode.
const localProviderName = "local"

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	broker    broker.Broker
	store     store.Store
	providers *provider.Registry
	resolver  *config.Resolver
	pipeline  *pipeline.Pipeline
}

// appOptions selects which collaborators a subcommand needs.
type appOptions struct {
	broker bool
	// providers enables fetching diffs and posting reviews.
	providers bool
	observers []pipeline.Observer
	// logOutput overrides stderr; TUI mode passes io.Discard.
	logOutput io.Writer
}

func newLogger(cfg *config.Config, w io.Writer) logger.Logger {
	if w == io.Discard {
		return logger.NewSilentLogger()
	}
	if w == nil {
		w = os.Stderr
	}
	return logger.NewSlogLogger(w, cfg.LogLevel).With("service", "sift")
}

// devMode reports whether the process runs without external infrastructure.
func devMode(cfg *config.Config) bool {
	return len(cfg.Brokers) == 0
}

func newBroker(cfg *config.Config, log logger.Logger) (broker.Broker, error) {
	if devMode(cfg) {
		log.Info("[Sift] No brokers configured, using in-memory queue")
		return broker.NewInMemoryBroker(), nil
	}
	b, err := broker.NewRedpandaBroker(cfg.Brokers, log)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newStore(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Store, error) {
	if cfg.PostgresDSN == "" {
		log.Info("[Sift] No Postgres DSN configured, checkpoints are kept in memory")
		return store.NewMemoryStore(), nil
	}
	s, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newGenerator returns the inference client, or nil when no key is set so
// detectors skip inference instead of failing every call.
func newGenerator(cfg *config.Config, log logger.Logger) (inference.Generator, error) {
	if cfg.InferenceAPIKey == "" {
		log.Warn("[Sift] No inference API key configured, running rule-based detection only")
		return nil, nil
	}
	client, err := inference.NewAnthropicClient(cfg.InferenceAPIKey, cfg.InferenceModel, cfg.InferenceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}
	return inference.NewResilient(client, inference.DefaultResilientConfig()), nil
}

func newProviders(ctx context.Context, cfg *config.Config, log logger.Logger) (*provider.Registry, error) {
	gh, err := github.New(ctx, github.Config{
		Token:         cfg.GitHubToken,
		WebhookSecret: cfg.GitHubWebhookSecret,
	}, log)
	if err != nil {
		return nil, err
	}

	adapters := []provider.Adapter{gh}
	if devMode(cfg) {
		adapters = append(adapters, provider.NewMemoryAdapter(localProviderName, ""))
	}
	return provider.NewRegistry(adapters...)
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, log: newLogger(cfg, opts.logOutput)}

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if opts.broker {
		if a.broker, err = newBroker(cfg, a.log); err != nil {
			return nil, fmt.Errorf("failed to connect to broker: %w", err)
		}
	}
	if a.store, err = newStore(ctx, cfg, a.log); err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	if opts.providers {
		if a.providers, err = newProviders(ctx, cfg, a.log); err != nil {
			return nil, fmt.Errorf("failed to configure providers: %w", err)
		}
	}
	if a.resolver, err = config.NewResolver(cfg.RepoConfigDir, review.DefaultConfiguration(), a.log); err != nil {
		return nil, fmt.Errorf("failed to load repository configuration: %w", err)
	}

	gen, err := newGenerator(cfg, a.log)
	if err != nil {
		return nil, err
	}

	var judge validate.Judge = validate.AcceptAll{}
	if gen != nil {
		judge = validate.NewInferenceJudge(gen)
	}

	registry := detect.NewBuiltinRegistry(detect.Env{Generator: gen, Logger: a.log})
	a.log.Debug("[Sift] Detectors registered: %s", strings.Join(registry.Kinds(), ", "))

	observers := append([]pipeline.Observer{pipeline.LogObserver{Logger: a.log}}, opts.observers...)
	a.pipeline = pipeline.New(pipeline.Options{
		Registry:    registry,
		Dispatcher:  detect.NewDispatcher(0, a.log),
		Validator:   validate.NewValidator(judge, cfg.MaxConcurrency, a.log),
		Providers:   a.providers,
		Configs:     a.resolver,
		Checkpoints: a.store,
		Observers:   observers,
		JobTimeout:  cfg.JobTimeout,
		Logger:      a.log,
	})

	ok = true
	return a, nil
}

// Close releases every collaborator that was opened.
func (a *app) Close() {
	if a.resolver != nil {
		a.resolver.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("[Sift] Failed to close checkpoint store: %v", err)
		}
	}
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.log.Warn("[Sift] Failed to close broker: %v", err)
		}
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
