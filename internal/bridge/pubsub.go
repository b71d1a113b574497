package bridge

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/lulajax/streamer-hub/internal/domain"
	"github.com/lulajax/streamer-hub/internal/metrics"
)

const relayChannel = "widget:invalidate"

// relayMessage wraps a change event with its origin instance so listeners can
// skip events they published themselves.
type relayMessage struct {
	Origin string             `json:"origin"`
	Event  domain.ChangeEvent `json:"event"`
}

// Relay fans change events out to other instances over Redis Pub/Sub. Widget
// subscribers can land on any instance, so every instance must hear about
// every mutation.
type Relay struct {
	rdb      *redis.Client
	instance string
}

// NewRelay creates a relay identified by instance for origin filtering.
func NewRelay(rdb *redis.Client, instance string) *Relay {
	return &Relay{rdb: rdb, instance: instance}
}

// Publish broadcasts a change event to all instances. Best-effort: a failed
// publish is logged and dropped, stale widgets recover on the next event.
func (r *Relay) Publish(ctx context.Context, ev domain.ChangeEvent) {
	data, err := json.Marshal(relayMessage{Origin: r.instance, Event: ev})
	if err != nil {
		slog.Error("Failed to marshal relay message", "error", err)
		return
	}
	if err := r.rdb.Publish(ctx, relayChannel, data).Err(); err != nil {
		metrics.BridgeEventsDropped.Inc()
		slog.Warn("Failed to publish change event to relay", "error", err)
	}
}

// Listen delivers events published by other instances to handle. Blocks until
// ctx is cancelled.
func (r *Relay) Listen(ctx context.Context, handle func(domain.ChangeEvent)) {
	pubsub := r.rdb.Subscribe(ctx, relayChannel)
	defer func() {
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				return
			}
			r.handleMessage(msg.Payload, handle)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) handleMessage(payload string, handle func(domain.ChangeEvent)) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		slog.Warn("Invalid relay message", "error", err)
		return
	}
	if msg.Origin == r.instance {
		return
	}
	handle(msg.Event)
}
