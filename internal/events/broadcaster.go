// Package events fans job lifecycle and log events out to subscribers.
package events

import (
	"log/slog"
	"sync"
	"time"
)

type Type string

const (
	JobStarted  Type = "job-started"
	JobLog      Type = "job-log"
	JobDone     Type = "job-done"
	JobError    Type = "job-error"
	JobCanceled Type = "job-canceled"
)

// AllJobs is the topic that receives every published event.
const AllJobs = "*"

const DefaultBuffer = 256

type Event struct {
	Type      Type      `json:"type"`
	JobID     string    `json:"jobId"`
	Strategy  string    `json:"strategy,omitempty"`
	Command   string    `json:"command,omitempty"`
	Status    string    `json:"status,omitempty"`
	Stream    string    `json:"stream,omitempty"`
	Data      string    `json:"data,omitempty"`
	Seq       int64     `json:"seq,omitempty"`
	ExitCode  *int      `json:"exitCode,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the publish side used by the execution manager.
type Publisher interface {
	Publish(e Event)
}

// Broadcaster routes events to subscriptions by job id.
// Publishing never blocks: a subscription whose buffer is full is evicted
// and its channel closed.
type Broadcaster struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	logger *slog.Logger

	onEvict func()
}

func NewBroadcaster(buffer int, logger *slog.Logger, onEvict func()) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		topics:  make(map[string]map[*Subscription]struct{}),
		buffer:  buffer,
		logger:  logger,
		onEvict: onEvict,
	}
}

// Subscription receives the events of the topics it has joined.
type Subscription struct {
	b      *Broadcaster
	ch     chan Event
	topics map[string]struct{} // guarded by b.mu
	closed bool                // guarded by b.mu
}

// Subscribe returns a subscription joined to topics.
func (b *Broadcaster) Subscribe(topics ...string) *Subscription {
	s := &Subscription{
		b:      b,
		ch:     make(chan Event, b.buffer),
		topics: make(map[string]struct{}),
	}

	b.mu.Lock()
	for _, t := range topics {
		b.joinLocked(s, t)
	}
	b.mu.Unlock()

	return s
}

func (b *Broadcaster) joinLocked(s *Subscription, topic string) {
	if s.closed {
		return
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[topic] = subs
	}
	subs[s] = struct{}{}
	s.topics[topic] = struct{}{}
}

func (b *Broadcaster) leaveLocked(s *Subscription, topic string) {
	if subs, ok := b.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
	delete(s.topics, topic)
}

// Publish delivers e to every subscription joined to e.JobID or AllJobs.
func (b *Broadcaster) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var evicted []*Subscription

	b.mu.RLock()
	delivered := make(map[*Subscription]struct{})
	for _, topic := range []string{e.JobID, AllJobs} {
		for s := range b.topics[topic] {
			if _, seen := delivered[s]; seen {
				continue
			}
			delivered[s] = struct{}{}

			select {
			case s.ch <- e:
			default:
				evicted = append(evicted, s)
			}
		}
	}
	b.mu.RUnlock()

	for _, s := range evicted {
		if !s.close() {
			continue
		}
		b.logger.Warn("evicted slow event subscriber", "job_id", e.JobID, "event", e.Type)
		if b.onEvict != nil {
			b.onEvict()
		}
	}
}

// SubscriberCount returns the number of subscriptions joined to topic.
func (b *Broadcaster) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Events returns the delivery channel. It is closed when the subscription
// is closed or evicted.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Join adds topic to the subscription.
func (s *Subscription) Join(topic string) {
	s.b.mu.Lock()
	s.b.joinLocked(s, topic)
	s.b.mu.Unlock()
}

// Leave removes topic from the subscription.
func (s *Subscription) Leave(topic string) {
	s.b.mu.Lock()
	s.b.leaveLocked(s, topic)
	s.b.mu.Unlock()
}

// Topics returns the joined topics.
func (s *Subscription) Topics() []string {
	s.b.mu.RLock()
	defer s.b.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// Close leaves all topics and closes the channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.close()
}

func (s *Subscription) close() bool {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if s.closed {
		return false
	}
	for t := range s.topics {
		s.b.leaveLocked(s, t)
	}
	s.closed = true
	close(s.ch)
	return true
}
