package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lulajax/streamer-hub/internal/domain"
	"github.com/lulajax/streamer-hub/internal/metrics"
)

const (
	eventBufferSize = 256
	resolveTimeout  = 3 * time.Second
)

// Notifier receives the widget tokens a change event resolves to.
type Notifier interface {
	Notify(token string)
}

// SessionResolver is the slice of the session repository the bridge needs.
type SessionResolver interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	ActiveForRoom(ctx context.Context, roomID string) (*domain.Session, error)
	MostRecentForRoom(ctx context.Context, roomID string) (*domain.Session, error)
}

// PresetResolver is the slice of the preset repository the bridge needs.
type PresetResolver interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Preset, error)
}

type queuedEvent struct {
	ev     domain.ChangeEvent
	remote bool
}

// Bridge decouples data mutations from widget delivery. Publish enqueues a
// change event without blocking; Run drains the queue, resolves each event to
// the widget tokens it touches, and notifies the hub. Delivery is best-effort
// and at-least-once, which is safe because the hub dedupes by payload digest.
type Bridge struct {
	events   chan queuedEvent
	sessions SessionResolver
	presets  PresetResolver
	notifier Notifier
	relay    *Relay
}

// New creates a bridge. relay may be nil for single-instance deployments.
func New(sessions SessionResolver, presets PresetResolver, notifier Notifier, relay *Relay) *Bridge {
	return &Bridge{
		events:   make(chan queuedEvent, eventBufferSize),
		sessions: sessions,
		presets:  presets,
		notifier: notifier,
		relay:    relay,
	}
}

// Publish enqueues a change event. Events are dropped, not blocked on, when
// the queue is full; a missed notification is recovered by the next one.
func (b *Bridge) Publish(ev domain.ChangeEvent) {
	b.enqueue(ev, false)
}

func (b *Bridge) enqueue(ev domain.ChangeEvent, remote bool) {
	metrics.BridgeEventsTotal.WithLabelValues(eventKind(ev)).Inc()
	select {
	case b.events <- queuedEvent{ev: ev, remote: remote}:
	default:
		metrics.BridgeEventsDropped.Inc()
		slog.Warn("Change event queue full, dropping event", "kind", eventKind(ev))
	}
}

// Run drains the event queue until ctx is cancelled. When a relay is
// configured it also listens for events published by other instances.
func (b *Bridge) Run(ctx context.Context) {
	if b.relay != nil {
		go b.relay.Listen(ctx, func(ev domain.ChangeEvent) {
			b.enqueue(ev, true)
		})
	}

	for {
		select {
		case q := <-b.events:
			b.dispatch(ctx, q)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, q queuedEvent) {
	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	tokens := b.resolve(resolveCtx, q.ev)
	for _, token := range tokens {
		b.notifier.Notify(token)
	}

	if !q.remote && b.relay != nil {
		b.relay.Publish(ctx, q.ev)
	}
}

// resolve maps a change event to the widget tokens whose rendered payload may
// have changed. A session touches both its own token and its preset's token,
// since preset-token subscribers in session mode follow the latest session.
func (b *Bridge) resolve(ctx context.Context, ev domain.ChangeEvent) []string {
	switch {
	case ev.Token != "":
		return []string{ev.Token}

	case ev.SessionID != "":
		id, err := uuid.Parse(ev.SessionID)
		if err != nil {
			metrics.BridgeResolveFailures.Inc()
			slog.Warn("Invalid session id in change event", "session_id", ev.SessionID, "error", err)
			return nil
		}
		session, err := b.sessions.Get(ctx, id)
		if err != nil {
			b.reportResolve("session", err)
			return nil
		}
		return b.sessionTokens(ctx, session)

	case ev.RoomID != "":
		session, err := b.sessions.ActiveForRoom(ctx, ev.RoomID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			session, err = b.sessions.MostRecentForRoom(ctx, ev.RoomID)
		}
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			b.reportResolve("room", err)
			return nil
		}
		return b.sessionTokens(ctx, session)

	case ev.PresetID != "":
		id, err := uuid.Parse(ev.PresetID)
		if err != nil {
			metrics.BridgeResolveFailures.Inc()
			slog.Warn("Invalid preset id in change event", "preset_id", ev.PresetID, "error", err)
			return nil
		}
		preset, err := b.presets.Get(ctx, id)
		if err != nil {
			b.reportResolve("preset", err)
			return nil
		}
		return []string{preset.WidgetToken}
	}
	return nil
}

func (b *Bridge) sessionTokens(ctx context.Context, session *domain.Session) []string {
	tokens := []string{session.WidgetToken}
	preset, err := b.presets.Get(ctx, session.PresetID)
	if err != nil {
		if !errors.Is(err, domain.ErrPresetNotFound) {
			b.reportResolve("session", err)
		}
		return tokens
	}
	return append(tokens, preset.WidgetToken)
}

func (b *Bridge) reportResolve(kind string, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrPresetNotFound) {
		slog.Debug("Change event referenced missing row", "kind", kind, "error", err)
		return
	}
	metrics.BridgeResolveFailures.Inc()
	slog.Warn("Change event resolution failed", "kind", kind, "error", err)
}

func eventKind(ev domain.ChangeEvent) string {
	switch {
	case ev.Token != "":
		return "token"
	case ev.SessionID != "":
		return "session"
	case ev.RoomID != "":
		return "room"
	case ev.PresetID != "":
		return "preset"
	}
	return "empty"
}
