// Package broker defines the interface for message brokers and provides implementations.
package broker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"sift-agent/src/contracts"
)

// Broker abstracts message publishing and acknowledged consumption.
// Delivery is at-least-once: a message is redelivered until it is acked.
type Broker interface {
	// Publish sends a message to a topic with an optional key for partitioning.
	// For in-memory broker, key is informational only.
	Publish(ctx context.Context, topic string, key string, value []byte, headers map[string]string) error

	// Subscribe returns a channel for consuming messages from a topic.
	// Each groupID receives every message once; flow bounds unacked deliveries.
	Subscribe(ctx context.Context, topic string, groupID string, flow FlowControl) (<-chan *Message, error)

	// Close shuts down the broker connection gracefully.
	Close() error
}

// FlowControl limits how many delivered messages may be outstanding (neither
// acked nor nacked) per subscription.
type FlowControl struct {
	MaxOutstanding int
}

// DefaultMaxOutstanding is used when FlowControl.MaxOutstanding is not positive.
const DefaultMaxOutstanding = 16

func (f FlowControl) limit() int {
	if f.MaxOutstanding <= 0 {
		return DefaultMaxOutstanding
	}
	return f.MaxOutstanding
}

// Message represents a consumed message from a broker.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Headers   map[string]string
	Offset    int64
	Partition int32
	Timestamp int64

	once      sync.Once
	ack       func()
	redeliver func(delay time.Duration, headers map[string]string)
}

// Ack confirms processing. Only the first Ack, Nack or Requeue takes effect.
func (m *Message) Ack() {
	m.once.Do(func() {
		if m.ack != nil {
			m.ack()
		}
	})
}

// Nack requests redelivery after delay with the attempt header incremented.
// Only the first Ack, Nack or Requeue takes effect.
func (m *Message) Nack(delay time.Duration) {
	m.once.Do(func() {
		if m.redeliver != nil {
			m.redeliver(delay, nextAttemptHeaders(m.Headers))
		}
	})
}

// Requeue requests immediate redelivery with the attempt header unchanged,
// for work abandoned by a shutdown rather than failed.
// Only the first Ack, Nack or Requeue takes effect.
func (m *Message) Requeue() {
	m.once.Do(func() {
		if m.redeliver != nil {
			m.redeliver(0, copyHeaders(m.Headers))
		}
	})
}

// Attempt returns the delivery attempt carried in the headers, starting at 1.
func (m *Message) Attempt() int {
	return attemptOf(m.Headers)
}

func attemptOf(headers map[string]string) int {
	n, err := strconv.Atoi(headers[contracts.HeaderAttempt])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// nextAttemptHeaders copies headers with the attempt counter incremented.
func nextAttemptHeaders(headers map[string]string) map[string]string {
	out := copyHeaders(headers)
	out[contracts.HeaderAttempt] = strconv.Itoa(attemptOf(headers) + 1)
	return out
}

func copyHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	return out
}
