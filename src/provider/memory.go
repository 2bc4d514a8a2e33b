package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"sift-agent/src/contracts"
	"sift-agent/src/review"
)

// PostedReview is a review captured by MemoryAdapter.
type PostedReview struct {
	Request  contracts.ReviewRequest
	Comments []review.Comment
	Summary  string
}

// MemoryAdapter is an in-process provider. It serves diffs from memory and
// records posted reviews instead of calling a hosting API. Webhook payloads
// are JSON-encoded ReviewRequests signed with HMAC-SHA256.
type MemoryAdapter struct {
	name   string
	secret []byte

	mu      sync.Mutex
	diffs   map[string]string
	posted  []PostedReview
	postErr error
	fetches int
}

// NewMemoryAdapter creates an in-process adapter. An empty secret disables signature checks.
func NewMemoryAdapter(name, secret string) *MemoryAdapter {
	return &MemoryAdapter{
		name:   name,
		secret: []byte(secret),
		diffs:  make(map[string]string),
	}
}

func (m *MemoryAdapter) Name() string            { return m.name }
func (m *MemoryAdapter) SignatureHeader() string { return "X-Sift-Signature" }

// SetDiff registers the diff served for a request reference (owner/repo#number).
func (m *MemoryAdapter) SetDiff(ref, diff string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diffs[ref] = diff
}

// FailPosts makes every subsequent PostReview return err. Pass nil to reset.
func (m *MemoryAdapter) FailPosts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postErr = err
}

// Posted returns a copy of the reviews posted so far.
func (m *MemoryAdapter) Posted() []PostedReview {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PostedReview, len(m.posted))
	copy(out, m.posted)
	return out
}

// Fetches returns how many times FetchDiff was called.
func (m *MemoryAdapter) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// Sign computes the signature header value for a payload.
func (m *MemoryAdapter) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (m *MemoryAdapter) VerifySignature(payload []byte, signature string) bool {
	if len(m.secret) == 0 {
		return true
	}
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(m.Sign(payload)), []byte(signature))
}

func (m *MemoryAdapter) ParseWebhook(payload []byte, headers http.Header) (*contracts.ReviewRequest, error) {
	var req contracts.ReviewRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if req.Owner == "" || req.Repo == "" || req.Number == 0 {
		return nil, fmt.Errorf("%w: payload does not identify a change", ErrUnsupportedEvent)
	}
	req.Provider = m.name
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = req.DeriveIdempotencyKey()
	}
	return &req, nil
}

func (m *MemoryAdapter) FetchDiff(ctx context.Context, req contracts.ReviewRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	diff, ok := m.diffs[req.Ref()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, req.Ref())
	}
	return diff, nil
}

func (m *MemoryAdapter) PostReview(ctx context.Context, req contracts.ReviewRequest, comments []review.Comment, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return m.postErr
	}
	m.posted = append(m.posted, PostedReview{
		Request:  req,
		Comments: append([]review.Comment(nil), comments...),
		Summary:  summary,
	})
	return nil
}
