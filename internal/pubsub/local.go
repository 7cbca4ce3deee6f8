package pubsub

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultBufferSize is the per-subscriber queue length
const DefaultBufferSize = 16

// localSubscriber represents a single subscriber with its channel and closed state.
type localSubscriber struct {
	ch     chan Message
	closed bool
	mu     sync.Mutex
}

// send queues msg. When the queue is full the oldest queued message is
// discarded so a slow reader always ends up with the newest state.
// Returns false if the subscriber is closed or a message was discarded.
func (s *localSubscriber) send(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
	}

	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- msg:
	default:
	}
	return false
}

// close marks the subscriber as closed and closes the channel.
func (s *localSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// LocalPubSub implements PubSub within a single process
type LocalPubSub struct {
	subscribers map[string][]*localSubscriber
	bufferSize  int
	mu          sync.RWMutex
}

// LocalOption configures a LocalPubSub
type LocalOption func(*LocalPubSub)

// WithBufferSize sets the per-subscriber queue length
func WithBufferSize(n int) LocalOption {
	return func(l *LocalPubSub) {
		if n > 0 {
			l.bufferSize = n
		}
	}
}

// NewLocalPubSub creates a new local pub/sub.
func NewLocalPubSub(opts ...LocalOption) *LocalPubSub {
	l := &LocalPubSub{
		subscribers: make(map[string][]*localSubscriber),
		bufferSize:  DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Publish sends a message to all local subscribers of a channel.
func (l *LocalPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	l.mu.RLock()
	subs := make([]*localSubscriber, len(l.subscribers[channel]))
	copy(subs, l.subscribers[channel])
	l.mu.RUnlock()

	msg := Message{
		Channel: channel,
		Payload: payload,
	}

	dropped := 0
	for _, sub := range subs {
		if !sub.send(msg) {
			dropped++
		}
	}
	if dropped > 0 {
		log.Debug().Str("channel", channel).Int("subscribers", dropped).Msg("Slow subscribers skipped a message")
	}

	return nil
}

// Subscribe returns a channel that receives messages published to the given channel.
func (l *LocalPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	sub := &localSubscriber{
		ch: make(chan Message, l.bufferSize),
	}

	l.mu.Lock()
	l.subscribers[channel] = append(l.subscribers[channel], sub)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.unsubscribe(channel, sub)
	}()

	return sub.ch, nil
}

// Subscribers returns the number of live subscriptions on channel
func (l *LocalPubSub) Subscribers(channel string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subscribers[channel])
}

func (l *LocalPubSub) unsubscribe(channel string, sub *localSubscriber) {
	l.mu.Lock()
	subs := l.subscribers[channel]
	for i, s := range subs {
		if s == sub {
			l.subscribers[channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(l.subscribers[channel]) == 0 {
		delete(l.subscribers, channel)
	}
	l.mu.Unlock()

	// Close outside the lock to avoid potential deadlock
	sub.close()
}

// Close releases all resources.
func (l *LocalPubSub) Close() error {
	l.mu.Lock()
	allSubs := make([]*localSubscriber, 0)
	for _, subs := range l.subscribers {
		allSubs = append(allSubs, subs...)
	}
	l.subscribers = make(map[string][]*localSubscriber)
	l.mu.Unlock()

	for _, sub := range allSubs {
		sub.close()
	}

	return nil
}
