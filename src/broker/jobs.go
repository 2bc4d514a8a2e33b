package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"sift-agent/src/contracts"
)

// PublishJob wraps req in a Job and publishes it to the review request topic,
// keyed by idempotency key so redeliveries of one revision share a partition.
func PublishJob(ctx context.Context, b Broker, req contracts.ReviewRequest) (contracts.Job, error) {
	job := contracts.NewJob(req)
	data, err := json.Marshal(job)
	if err != nil {
		return job, fmt.Errorf("failed to marshal job: %w", err)
	}
	headers := map[string]string{
		contracts.HeaderAttempt:   "1",
		contracts.HeaderMessageID: job.MessageID,
		contracts.HeaderPriority:  strconv.Itoa(job.Priority),
	}
	if err := b.Publish(ctx, contracts.TopicReviewRequests, job.Request.IdempotencyKey, data, headers); err != nil {
		return job, fmt.Errorf("failed to publish job %s: %w", job.MessageID, err)
	}
	return job, nil
}

// DecodeJob parses a consumed message into a Job. The delivery attempt is
// taken from the message headers, which track redeliveries.
func DecodeJob(msg *Message) (contracts.Job, error) {
	var job contracts.Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return job, fmt.Errorf("failed to decode job: %w", err)
	}
	job.DeliveryAttempt = msg.Attempt()
	return job, nil
}

// PublishDeadLetter publishes dl to the dead-letter topic keyed by message id.
func PublishDeadLetter(ctx context.Context, b Broker, dl contracts.DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	headers := map[string]string{
		contracts.HeaderMessageID: dl.Job.MessageID,
		contracts.HeaderAttempt:   strconv.Itoa(dl.Attempts),
	}
	if err := b.Publish(ctx, contracts.TopicDeadLetter, dl.Job.MessageID, data, headers); err != nil {
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}
	return nil
}
