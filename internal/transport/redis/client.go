// Package redis relays committed snapshots between service instances that
// share one Redis, so a viewer connected to one instance sees moves accepted
// by another.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
)

const Channel = "session:feed"

// outboxSize bounds relay messages waiting for Redis; beyond it they are dropped.
const outboxSize = 256

const (
	kindState  = "state"
	kindClosed = "closed"
)

// Local is the in-process feed the relay mirrors into.
type Local interface {
	Publish(session *entity.Session)
	Close(id string)
}

type envelope struct {
	Origin    string          `json:"origin"`
	Kind      string          `json:"kind"`
	SessionID string          `json:"session_id"`
	Session   *entity.Session `json:"session,omitempty"`
}

type Client struct {
	logger *slog.Logger
	client *redis.Client
	local  Local
	origin string

	outbox chan envelope
}

func New(logger *slog.Logger, client *redis.Client, local Local) *Client {
	return &Client{
		logger: logger.With("component", "relay"),
		client: client,
		local:  local,
		origin: uuid.NewString(),
		outbox: make(chan envelope, outboxSize),
	}
}

// Publish feeds local subscribers and then tells the other instances.
func (that *Client) Publish(session *entity.Session) {
	that.local.Publish(session)
	that.send(envelope{Kind: kindState, SessionID: session.ID, Session: session.Masked()})
}

// Close ends local subscriptions and then tells the other instances.
func (that *Client) Close(id string) {
	that.local.Close(id)
	that.send(envelope{Kind: kindClosed, SessionID: id})
}

// send queues message for Redis without waiting on the network.
func (that *Client) send(message envelope) {
	message.Origin = that.origin

	select {
	case that.outbox <- message:
	default:
		// a lost relay message only delays remote viewers until the next commit
		that.logger.Warn("relay outbox full, dropping message", "session_id", message.SessionID, "kind", message.Kind)
	}
}

// Run mirrors messages from other instances into the local feed and sends
// queued local messages out, until ctx is done.
func (that *Client) Run(ctx context.Context) error {
	pubsub := that.client.Subscribe(ctx, Channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		that.drain(ctx)
	}()

	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			that.receive(msg.Payload)
		}
	}
}

func (that *Client) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-that.outbox:
			that.publish(ctx, message)
		}
	}
}

func (that *Client) publish(ctx context.Context, message envelope) {
	payload, err := json.Marshal(message)
	if err != nil {
		that.logger.Error("failed to marshal relay message", "error", err)
		return
	}

	if err = that.client.Publish(ctx, Channel, payload).Err(); err != nil && ctx.Err() == nil {
		that.logger.Warn("failed to relay session", "session_id", message.SessionID, "error", err)
	}
}

func (that *Client) receive(payload string) {
	var message envelope
	if err := json.Unmarshal([]byte(payload), &message); err != nil {
		that.logger.Warn("dropping malformed relay message", "error", err)
		return
	}

	if message.Origin == that.origin {
		return
	}

	switch message.Kind {
	case kindState:
		if message.Session != nil {
			that.local.Publish(message.Session)
		}
	case kindClosed:
		that.local.Close(message.SessionID)
	}
}
