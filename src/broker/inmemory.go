package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memRecord struct {
	topic     string
	key       string
	value     []byte
	headers   map[string]string
	offset    int64
	timestamp time.Time
}

// InMemoryBroker is a channel-based Broker for local mode and tests.
// Messages published to a topic with no subscribers are retained until the
// first subscription arrives.
type InMemoryBroker struct {
	mu      sync.Mutex
	subs    map[string]map[string]*memSub // topic -> group -> subscription
	backlog map[string][]memRecord
	offset  int64
	closed  bool
}

// NewInMemoryBroker creates a new InMemoryBroker instance.
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subs:    make(map[string]map[string]*memSub),
		backlog: make(map[string][]memRecord),
	}
}

// Publish delivers a copy of the message to every group subscribed to topic.
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, key string, value []byte, headers map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("broker is closed")
	}

	b.offset++
	rec := memRecord{
		topic:     topic,
		key:       key,
		value:     append([]byte(nil), value...),
		headers:   copyHeaders(headers),
		offset:    b.offset,
		timestamp: time.Now(),
	}

	groups := b.subs[topic]
	if len(groups) == 0 {
		b.backlog[topic] = append(b.backlog[topic], rec)
		return nil
	}
	for _, sub := range groups {
		sub.enqueue(rec)
	}
	return nil
}

// Subscribe creates a subscription for topic and group. One subscription per group is allowed.
func (b *InMemoryBroker) Subscribe(ctx context.Context, topic string, groupID string, flow FlowControl) (<-chan *Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("broker is closed")
	}
	if _, exists := b.subs[topic][groupID]; exists {
		return nil, fmt.Errorf("consumer already exists for topic %s and group %s", topic, groupID)
	}

	sub := newMemSub(flow.limit())
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[string]*memSub)
	}
	b.subs[topic][groupID] = sub

	for _, rec := range b.backlog[topic] {
		sub.enqueue(rec)
	}
	delete(b.backlog, topic)

	go sub.pump(ctx)
	return sub.out, nil
}

// Close stops every subscription. Pending redeliveries are dropped.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, groups := range b.subs {
		for _, sub := range groups {
			sub.stop()
		}
	}
	return nil
}

// memSub is one group's queue. tokens bounds outstanding deliveries.
type memSub struct {
	mu     sync.Mutex
	queue  []memRecord
	signal chan struct{}
	tokens chan struct{}
	out    chan *Message
	done   chan struct{}
	once   sync.Once
}

func newMemSub(maxOutstanding int) *memSub {
	return &memSub{
		signal: make(chan struct{}, 1),
		tokens: make(chan struct{}, maxOutstanding),
		out:    make(chan *Message),
		done:   make(chan struct{}),
	}
}

func (s *memSub) enqueue(rec memRecord) {
	s.mu.Lock()
	s.queue = append(s.queue, rec)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *memSub) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *memSub) pump(ctx context.Context) {
	defer close(s.out)
	for {
		select {
		case s.tokens <- struct{}{}:
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}

		rec, ok := s.next(ctx)
		if !ok {
			return
		}

		select {
		case s.out <- s.message(rec):
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *memSub) next(ctx context.Context) (memRecord, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			rec := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return rec, true
		}
		s.mu.Unlock()

		select {
		case <-s.signal:
		case <-ctx.Done():
			return memRecord{}, false
		case <-s.done:
			return memRecord{}, false
		}
	}
}

func (s *memSub) release() {
	select {
	case <-s.tokens:
	default:
	}
}

func (s *memSub) message(rec memRecord) *Message {
	return &Message{
		Topic:     rec.topic,
		Key:       rec.key,
		Value:     rec.value,
		Headers:   copyHeaders(rec.headers),
		Offset:    rec.offset,
		Timestamp: rec.timestamp.UnixMilli(),
		ack:       s.release,
		redeliver: func(delay time.Duration, headers map[string]string) {
			s.release()
			retry := rec
			retry.headers = headers
			if delay <= 0 {
				s.enqueue(retry)
				return
			}
			time.AfterFunc(delay, func() {
				select {
				case <-s.done:
				default:
					s.enqueue(retry)
				}
			})
		},
	}
}
