// Package broadcast fans committed session snapshots out to viewers.
//
// Every subscription holds at most one undelivered snapshot. A newer commit
// replaces an older pending one, so a slow reader skips intermediate states
// but always ends up on the latest, and publishers never wait for readers.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
)

var ErrClosed = errors.New("subscription closed")

// Source loads the current committed session.
type Source interface {
	Get(ctx context.Context, id string) (*entity.Session, error)
}

type Broadcaster struct {
	logger *slog.Logger

	mu     sync.Mutex
	topics map[string]map[string]*Subscription
}

func New(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger.With("component", "broadcaster"),
		topics: make(map[string]map[string]*Subscription),
	}
}

// Subscribe registers a viewer of session id. The first delivery is the
// session as committed right now; later deliveries follow in revision order.
func (that *Broadcaster) Subscribe(ctx context.Context, source Source, id string) (*Subscription, error) {
	sub := newSubscription(id, that.remove)

	// register before reading so a commit racing with the read is not lost
	that.mu.Lock()
	topic, ok := that.topics[id]
	if !ok {
		topic = make(map[string]*Subscription)
		that.topics[id] = topic
	}
	topic[sub.ID] = sub
	that.mu.Unlock()

	snapshot, err := source.Get(ctx, id)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to load session snapshot: %w", err)
	}

	sub.offer(snapshot.Masked())

	that.logger.Debug("subscribed", "session_id", id, "subscription_id", sub.ID)

	return sub, nil
}

// Publish hands a committed snapshot to every subscriber of its session.
func (that *Broadcaster) Publish(session *entity.Session) {
	that.mu.Lock()
	topic := that.topics[session.ID]
	subs := make([]*Subscription, 0, len(topic))
	for _, sub := range topic {
		subs = append(subs, sub)
	}
	that.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	masked := session.Masked()
	for _, sub := range subs {
		sub.offer(masked)
	}
}

// Close ends every subscription of session id, after any pending snapshot
// has been read.
func (that *Broadcaster) Close(id string) {
	that.mu.Lock()
	topic := that.topics[id]
	delete(that.topics, id)
	that.mu.Unlock()

	for _, sub := range topic {
		sub.finish()
	}

	if len(topic) > 0 {
		that.logger.Debug("session feed closed", "session_id", id, "subscribers", len(topic))
	}
}

// Subscribers reports how many viewers a session has.
func (that *Broadcaster) Subscribers(id string) int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.topics[id])
}

func (that *Broadcaster) remove(sub *Subscription) {
	that.mu.Lock()
	defer that.mu.Unlock()

	topic := that.topics[sub.SessionID]
	delete(topic, sub.ID)
	if len(topic) == 0 {
		delete(that.topics, sub.SessionID)
	}
}

type Subscription struct {
	ID        string
	SessionID string

	mu       sync.Mutex
	pending  *entity.Session
	revision int64
	closed   bool

	notify chan struct{}
	done   chan struct{}

	unsubscribe func(*Subscription)
	closeOnce   sync.Once
}

func newSubscription(sessionID string, unsubscribe func(*Subscription)) *Subscription {
	return &Subscription{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		revision:    -1,
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
		unsubscribe: unsubscribe,
	}
}

// offer replaces the pending snapshot unless it is older than what this
// subscriber has already been given.
func (that *Subscription) offer(session *entity.Session) {
	that.mu.Lock()
	if that.closed || session.Revision < that.revision {
		that.mu.Unlock()
		return
	}
	that.pending = session
	that.revision = session.Revision
	that.mu.Unlock()

	select {
	case that.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a snapshot newer than the last one is available.
func (that *Subscription) Next(ctx context.Context) (*entity.Session, error) {
	for {
		that.mu.Lock()
		if that.pending != nil {
			session := that.pending
			that.pending = nil
			that.mu.Unlock()
			return session, nil
		}
		closed := that.closed
		that.mu.Unlock()

		if closed {
			return nil, ErrClosed
		}

		select {
		case <-that.notify:
		case <-that.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Done is closed once the subscription ends.
func (that *Subscription) Done() <-chan struct{} {
	return that.done
}

// Close stops the subscription and drops it from the broadcaster.
func (that *Subscription) Close() {
	that.finish()
	that.unsubscribe(that)
}

func (that *Subscription) finish() {
	that.closeOnce.Do(func() {
		that.mu.Lock()
		that.closed = true
		that.mu.Unlock()
		close(that.done)
	})
}
