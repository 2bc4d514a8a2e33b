// Package webhook provides the HTTP server that turns provider webhooks into queued review jobs.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"sift-agent/src/broker"
	"sift-agent/src/logger"
	"sift-agent/src/provider"
)

// MaxPayloadBytes bounds webhook bodies.
const MaxPayloadBytes = 10 << 20

// Server is the HTTP webhook server.
type Server struct {
	addr      string
	providers *provider.Registry
	broker    broker.Broker
	logger    logger.Logger
	server    *http.Server
}

// NewServer creates a new webhook server.
func NewServer(addr string, providers *provider.Registry, b broker.Broker, log logger.Logger) *Server {
	return &Server{
		addr:      addr,
		providers: providers,
		broker:    b,
		logger:    logger.OrSilent(log),
	}
}

// Handler returns the routes served by the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/{provider}", s.handleWebhook)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// Start listens until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("[Webhook] Listening on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")

	adapter, err := s.providers.Get(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		return
	}

	if !adapter.VerifySignature(payload, r.Header.Get(adapter.SignatureHeader())) {
		s.logger.Warn("[Webhook] Invalid signature for %s webhook from %s", name, r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": provider.ErrInvalidSignature.Error()})
		return
	}

	req, err := adapter.ParseWebhook(payload, r.Header)
	if errors.Is(err, provider.ErrUnsupportedEvent) {
		s.logger.Debug("[Webhook] Ignoring %s delivery: %v", name, err)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		s.logger.Warn("[Webhook] Failed to parse %s webhook: %v", name, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	job, err := broker.PublishJob(r.Context(), s.broker, *req)
	if err != nil {
		s.logger.Error("[Webhook] Failed to enqueue %s: %v", req.Ref(), err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue review"})
		return
	}

	s.logger.Info("[Webhook] Queued %s as %s", req.Ref(), job.MessageID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "message_id": job.MessageID})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
