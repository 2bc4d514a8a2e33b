package mcp

import "sync"

// ManifestStore keeps review results for drill-down by finding ID.
type ManifestStore interface {
	Store(reviewID string, manifest ReviewManifest, findings []Finding)
	Get(reviewID, findingID string) (Finding, bool)
	GetAll(reviewID string) (ReviewManifest, bool)
}

// InMemoryStore is a thread-safe ManifestStore. Entries beyond the
// capacity evict the oldest review.
type InMemoryStore struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	reviews  map[string]ReviewManifest
	findings map[string]map[string]Finding
}

// DefaultStoreCapacity is the number of reviews kept by NewInMemoryStore.
const DefaultStoreCapacity = 64

// NewInMemoryStore creates a store holding up to capacity reviews.
func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	return &InMemoryStore{
		capacity: capacity,
		reviews:  make(map[string]ReviewManifest),
		findings: make(map[string]map[string]Finding),
	}
}

// Store saves a manifest and indexes every finding of the review by ID.
func (s *InMemoryStore) Store(reviewID string, manifest ReviewManifest, findings []Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reviews[reviewID]; !exists {
		s.order = append(s.order, reviewID)
	}
	s.reviews[reviewID] = manifest

	index := make(map[string]Finding, len(findings))
	for _, f := range findings {
		index[f.ID] = f
	}
	s.findings[reviewID] = index

	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.reviews, oldest)
		delete(s.findings, oldest)
	}
}

// Get retrieves a single finding.
func (s *InMemoryStore) Get(reviewID, findingID string) (Finding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index, ok := s.findings[reviewID]; ok {
		f, found := index[findingID]
		return f, found
	}
	return Finding{}, false
}

// GetAll retrieves the manifest of a review.
func (s *InMemoryStore) GetAll(reviewID string) (ReviewManifest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.reviews[reviewID]
	return m, ok
}
