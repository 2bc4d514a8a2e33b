// Package contracts defines message types exchanged between the webhook server and workers.
package contracts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReviewRequest identifies a change to review.
// Published to: sift.reviews.requests (wrapped in a Job)
// Key: {idempotency_key}
type ReviewRequest struct {
	// Hosting provider name (e.g. "github").
	Provider string `json:"provider"`
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	// Pull/merge request number.
	Number int `json:"number"`
	// Head commit the review is anchored to.
	HeadSHA string `json:"head_sha"`
	BaseSHA string `json:"base_sha,omitempty"`
	Title   string `json:"title,omitempty"`
	// Inline unified diff. When empty the diff is fetched from the provider at ingest.
	Diff string `json:"diff,omitempty"`
	// Higher values are more urgent.
	Priority int `json:"priority"`
	// Unique key for this change revision; redeliveries share it.
	IdempotencyKey string `json:"idempotency_key"`
}

// Ref returns a short human-readable reference like "owner/repo#12".
func (r ReviewRequest) Ref() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// DeriveIdempotencyKey builds the key used when a request carries none.
func (r ReviewRequest) DeriveIdempotencyKey() string {
	return fmt.Sprintf("%s:%s/%s#%d@%s", r.Provider, r.Owner, r.Repo, r.Number, r.HeadSHA)
}

// Job is the queue envelope around a ReviewRequest.
type Job struct {
	MessageID       string        `json:"message_id"`
	Priority        int           `json:"priority"`
	ReceivedAt      time.Time     `json:"received_at"`
	DeliveryAttempt int           `json:"delivery_attempt"`
	Request         ReviewRequest `json:"request"`
}

// NewJob wraps a request for publishing.
func NewJob(req ReviewRequest) Job {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = req.DeriveIdempotencyKey()
	}
	return Job{
		MessageID:       uuid.NewString(),
		Priority:        req.Priority,
		ReceivedAt:      time.Now().UTC(),
		DeliveryAttempt: 1,
		Request:         req,
	}
}

// DeadLetter is published when a job exhausts its retries.
// Published to: sift.reviews.deadletter
// Key: {message_id}
type DeadLetter struct {
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
	Worker   string    `json:"worker"`
	// Raw payload, set when the job itself could not be decoded.
	Payload []byte `json:"payload,omitempty"`
}

// Topic names
const (
	// TopicReviewRequests carries Job envelopes.
	TopicReviewRequests = "sift.reviews.requests"

	// TopicDeadLetter carries DeadLetter records for manual inspection.
	TopicDeadLetter = "sift.reviews.deadletter"
)

// Message header keys
const (
	HeaderAttempt   = "sift-attempt"
	HeaderPriority  = "sift-priority"
	HeaderMessageID = "sift-message-id"
)
