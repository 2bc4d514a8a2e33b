package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"sift-agent/src/logger"
)

// RedpandaBroker is a Kafka-compatible broker implementation using franz-go.
// Consumers commit offsets manually on Ack; Nack republishes the record with
// an incremented attempt header after the delay and then commits the original.
// Close republishes pending redeliveries at once instead of dropping them.
type RedpandaBroker struct {
	client    *kgo.Client
	brokers   []string
	logger    logger.Logger
	mu        sync.RWMutex
	consumers map[string]*kgo.Client // topic+groupID -> consumer client
	closed    bool
	closing   chan struct{}
	pending   sync.WaitGroup
}

// requeueTimeout bounds each republish so Close cannot hang on a dead cluster.
const requeueTimeout = 10 * time.Second

// NewRedpandaBroker creates a new RedpandaBroker instance.
// brokers is a slice of broker addresses (e.g., ["localhost:19092"]).
func NewRedpandaBroker(brokers []string, log logger.Logger) (*RedpandaBroker, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	return &RedpandaBroker{
		client:    client,
		brokers:   brokers,
		logger:    logger.OrSilent(log),
		consumers: make(map[string]*kgo.Client),
		closing:   make(chan struct{}),
	}, nil
}

// Publish sends a message to a topic with the specified key and headers.
func (b *RedpandaBroker) Publish(ctx context.Context, topic string, key string, value []byte, headers map[string]string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("broker is closed")
	}

	record := &kgo.Record{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: toRecordHeaders(headers),
	}

	if err := b.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// Subscribe creates a consumer for the specified topic and consumer group.
func (b *RedpandaBroker) Subscribe(ctx context.Context, topic string, groupID string, flow FlowControl) (<-chan *Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("broker is closed")
	}

	consumerKey := fmt.Sprintf("%s:%s", topic, groupID)
	if _, exists := b.consumers[consumerKey]; exists {
		return nil, fmt.Errorf("consumer already exists for topic %s and group %s", topic, groupID)
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(b.brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	b.consumers[consumerKey] = consumer

	msgChan := make(chan *Message)
	tokens := make(chan struct{}, flow.limit())
	go b.consumeLoop(ctx, consumer, tokens, msgChan)

	return msgChan, nil
}

// consumeLoop polls for as many records as there are free flow-control slots.
func (b *RedpandaBroker) consumeLoop(ctx context.Context, consumer *kgo.Client, tokens chan struct{}, msgChan chan<- *Message) {
	defer close(msgChan)

	for {
		select {
		case tokens <- struct{}{}:
		case <-ctx.Done():
			return
		}
		slots := 1
	grab:
		for slots < cap(tokens) {
			select {
			case tokens <- struct{}{}:
				slots++
			default:
				break grab
			}
		}

		fetches := consumer.PollRecords(ctx, slots)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				b.logger.Warn("[RedpandaBroker] Fetch error on %s/%d: %v", err.Topic, err.Partition, err.Err)
			}
		}

		delivered := 0
		fetches.EachRecord(func(record *kgo.Record) {
			msg := b.message(consumer, record, tokens)
			select {
			case msgChan <- msg:
				delivered++
			case <-ctx.Done():
			}
		})
		for i := delivered; i < slots; i++ {
			<-tokens
		}
	}
}

func (b *RedpandaBroker) message(consumer *kgo.Client, record *kgo.Record, tokens chan struct{}) *Message {
	commit := func() {
		if err := consumer.CommitRecords(context.Background(), record); err != nil {
			b.logger.Error("[RedpandaBroker] Failed to commit %s/%d@%d: %v", record.Topic, record.Partition, record.Offset, err)
		}
	}

	return &Message{
		Topic:     record.Topic,
		Key:       string(record.Key),
		Value:     record.Value,
		Headers:   fromRecordHeaders(record.Headers),
		Offset:    record.Offset,
		Partition: record.Partition,
		Timestamp: record.Timestamp.UnixMilli(),
		ack: func() {
			commit()
			<-tokens
		},
		redeliver: func(delay time.Duration, headers map[string]string) {
			<-tokens
			if !b.track() {
				// Closed; the record stays uncommitted and the group redelivers it.
				return
			}
			go func() {
				defer b.pending.Done()
				if b.requeue(record, headers, delay) {
					commit()
				}
			}()
		},
	}
}

// track registers a pending redelivery. It fails once Close has started.
func (b *RedpandaBroker) track() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	b.pending.Add(1)
	return true
}

// requeue waits out delay, cut short by Close, and republishes the record.
// On failure the original stays uncommitted.
func (b *RedpandaBroker) requeue(record *kgo.Record, headers map[string]string, delay time.Duration) bool {
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-b.closing:
			timer.Stop()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
	defer cancel()
	retry := &kgo.Record{
		Topic:   record.Topic,
		Key:     record.Key,
		Value:   record.Value,
		Headers: toRecordHeaders(headers),
	}
	if err := b.client.ProduceSync(ctx, retry).FirstErr(); err != nil {
		b.logger.Error("[RedpandaBroker] Failed to requeue %s/%d@%d: %v", record.Topic, record.Partition, record.Offset, err)
		return false
	}
	return true
}

// Close shuts down the broker and all consumer connections.
func (b *RedpandaBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closing)
	b.mu.Unlock()

	b.pending.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, consumer := range b.consumers {
		consumer.Close()
	}
	b.consumers = make(map[string]*kgo.Client)
	b.client.Close()
	return nil
}

func toRecordHeaders(headers map[string]string) []kgo.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kgo.RecordHeader, 0, len(headers))
	for k, v := range headers {
		out = append(out, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return out
}

func fromRecordHeaders(headers []kgo.RecordHeader) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
