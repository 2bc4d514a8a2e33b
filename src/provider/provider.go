package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"sift-agent/src/contracts"
	"sift-agent/src/review"
)

// Adapter integrates a code hosting platform with the review pipeline.
type Adapter interface {
	// Name returns the provider name used in webhook routes and requests (e.g., "github").
	Name() string

	// VerifySignature checks a webhook payload against its signature header value.
	VerifySignature(payload []byte, signature string) bool

	// SignatureHeader names the request header carrying the webhook signature.
	SignatureHeader() string

	// ParseWebhook turns a webhook delivery into a review request.
	// It returns ErrUnsupportedEvent for deliveries that should not trigger a review.
	ParseWebhook(payload []byte, headers http.Header) (*contracts.ReviewRequest, error)

	// FetchDiff retrieves the unified diff for the change under review.
	FetchDiff(ctx context.Context, req contracts.ReviewRequest) (string, error)

	// PostReview publishes inline comments and a summary on the change.
	PostReview(ctx context.Context, req contracts.ReviewRequest, comments []review.Comment, summary string) error
}

// Registry maps provider names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. Names must be unique.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; exists {
		return fmt.Errorf("provider %q already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return a, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
