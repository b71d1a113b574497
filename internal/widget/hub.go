package widget

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/lulajax/streamer-hub/internal/domain"
	"github.com/lulajax/streamer-hub/internal/metrics"
	"github.com/lulajax/streamer-hub/internal/transport"
)

const renderTimeout = 5 * time.Second

type widgetCmd interface{ isWidgetCmd() }

type baseWidgetCmd struct{}

func (baseWidgetCmd) isWidgetCmd() {}

type subscribeCmd struct {
	baseWidgetCmd
	conn  domain.Conn
	token string
	mode  domain.Mode
}

type unsubscribeCmd struct {
	baseWidgetCmd
	conn domain.Conn
}

type notifyCmd struct {
	baseWidgetCmd
	token string
}

// renderOutcome is one mode's render result: the serialized payload and its
// digest, or the provider error.
type renderOutcome struct {
	data   []byte
	digest string
	err    error
}

type renderResultCmd struct {
	baseWidgetCmd
	token   string
	results map[domain.Mode]renderOutcome
}

type countCmd struct {
	baseWidgetCmd
	token        string
	replyChannel chan int
}

type widgetStopCmd struct {
	baseWidgetCmd
}

type subscriber struct {
	conn       domain.Conn
	writer     *transport.Writer
	token      string
	mode       domain.Mode
	lastDigest string
}

// Hub fans widget payloads out to token subscribers. One goroutine owns the
// subscription tables; provider renders run in spawned goroutines so the
// actor never blocks on I/O, and their results come back as commands.
type Hub struct {
	cmdCh    chan widgetCmd
	clock    clockwork.Clock
	provider domain.WidgetDataProvider
	breaker  *gobreaker.CircuitBreaker
	subs     map[string]map[domain.Conn]*subscriber
	conns    map[domain.Conn]*subscriber
	inflight map[string]bool
	dirty    map[string]bool
	done     chan struct{}
}

// NewHub creates the hub and starts its actor goroutine.
func NewHub(provider domain.WidgetDataProvider, clock clockwork.Clock) *Hub {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "widget-data-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			metrics.BreakerStateChanges.WithLabelValues(name, to.String()).Inc()
		},
	})

	h := &Hub{
		cmdCh:    make(chan widgetCmd, 256),
		clock:    clock,
		provider: provider,
		breaker:  breaker,
		subs:     make(map[string]map[domain.Conn]*subscriber),
		conns:    make(map[domain.Conn]*subscriber),
		inflight: make(map[string]bool),
		dirty:    make(map[string]bool),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

// Subscribe registers conn under token and triggers an initial render. A
// token the provider cannot resolve tears the subscription down with an
// error frame.
func (h *Hub) Subscribe(conn domain.Conn, token string, mode domain.Mode) {
	h.cmdCh <- subscribeCmd{conn: conn, token: token, mode: mode}
}

// Unsubscribe removes conn from its token's set.
func (h *Hub) Unsubscribe(conn domain.Conn) {
	h.cmdCh <- unsubscribeCmd{conn: conn}
}

// Notify re-renders the token and pushes to subscribers whose payload
// changed. Safe to call for tokens nobody subscribes to.
func (h *Hub) Notify(token string) {
	h.cmdCh <- notifyCmd{token: token}
}

// SubscriberCount returns the number of connections subscribed to token.
func (h *Hub) SubscriberCount(token string) int {
	replyCh := make(chan int, 1)
	select {
	case h.cmdCh <- countCmd{token: token, replyChannel: replyCh}:
		return <-replyCh
	case <-h.done:
		return 0
	}
}

// Stop closes every subscriber connection and shuts the actor down.
func (h *Hub) Stop() {
	select {
	case h.cmdCh <- widgetStopCmd{}:
		<-h.done
	case <-h.done:
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case subscribeCmd:
			h.handleSubscribe(c)
		case unsubscribeCmd:
			h.handleUnsubscribe(c.conn)
		case notifyCmd:
			h.startRender(c.token)
		case renderResultCmd:
			h.handleRenderResult(c)
		case countCmd:
			c.replyChannel <- len(h.subs[c.token])
		case widgetStopCmd:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleSubscribe(c subscribeCmd) {
	if c.token == "" {
		h.sendDirect(c.conn, domain.ErrorEnvelope("Missing widget token"))
		_ = c.conn.Close()
		return
	}

	conns, exists := h.subs[c.token]
	if !exists {
		conns = make(map[domain.Conn]*subscriber)
		h.subs[c.token] = conns
		metrics.WidgetTokensActive.Set(float64(len(h.subs)))
	}

	sub := &subscriber{
		conn:   c.conn,
		writer: transport.NewWriter(c.conn, h.clock),
		token:  c.token,
		mode:   c.mode,
	}
	conns[c.conn] = sub
	h.conns[c.conn] = sub
	metrics.WidgetSubscribersConnected.Inc()
	slog.Debug("Widget subscriber registered", "token", c.token, "mode", string(c.mode), "subscribers", len(conns))

	h.startRender(c.token)
}

func (h *Hub) handleUnsubscribe(conn domain.Conn) {
	sub, exists := h.conns[conn]
	if !exists {
		return
	}
	delete(h.conns, conn)

	if conns, ok := h.subs[sub.token]; ok {
		delete(conns, conn)
		metrics.WidgetSubscribersConnected.Dec()
		if len(conns) == 0 {
			delete(h.subs, sub.token)
			delete(h.dirty, sub.token)
			metrics.WidgetTokensActive.Set(float64(len(h.subs)))
			slog.Debug("Widget token reclaimed", "token", sub.token)
		}
	}
	sub.writer.Stop()
}

// startRender kicks an async render of every mode currently in use for the
// token. A render already in flight marks the token dirty instead, so bursts
// of notifications collapse into one trailing render.
func (h *Hub) startRender(token string) {
	conns, exists := h.subs[token]
	if !exists || len(conns) == 0 {
		return
	}

	if h.inflight[token] {
		h.dirty[token] = true
		return
	}
	h.inflight[token] = true
	h.dirty[token] = false

	modes := make(map[domain.Mode]struct{})
	for _, sub := range conns {
		modes[sub.mode] = struct{}{}
	}

	go func() {
		results := make(map[domain.Mode]renderOutcome, len(modes))
		for mode := range modes {
			results[mode] = h.render(token, mode)
		}
		h.cmdCh <- renderResultCmd{token: token, results: results}
	}()
}

// render is the only provider touchpoint; it runs outside the actor
// goroutine so no subscription state is held while the call is in flight.
func (h *Hub) render(token string, mode domain.Mode) renderOutcome {
	start := h.clock.Now()
	result, err := h.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
		defer cancel()
		return h.provider.Render(ctx, token, mode)
	})
	metrics.WidgetRenderDuration.Observe(h.clock.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, domain.ErrWidgetTokenNotFound) {
			metrics.WidgetRendersTotal.WithLabelValues("not_found").Inc()
		} else {
			metrics.WidgetRendersTotal.WithLabelValues("error").Inc()
		}
		return renderOutcome{err: err}
	}

	data, err := json.Marshal(result.(*domain.WidgetData))
	if err != nil {
		metrics.WidgetRendersTotal.WithLabelValues("error").Inc()
		return renderOutcome{err: err}
	}

	metrics.WidgetRendersTotal.WithLabelValues("ok").Inc()
	sum := sha256.Sum256(data)
	return renderOutcome{data: data, digest: hex.EncodeToString(sum[:])}
}

func (h *Hub) handleRenderResult(c renderResultCmd) {
	h.inflight[c.token] = false

	conns, exists := h.subs[c.token]
	if !exists {
		delete(h.dirty, c.token)
		delete(h.inflight, c.token)
		return
	}

	// A token unknown to the provider invalidates every subscription on it;
	// a widget socket is never kept open against an unresolvable token.
	for _, outcome := range c.results {
		if errors.Is(outcome.err, domain.ErrWidgetTokenNotFound) {
			slog.Warn("Tearing down subscriptions for unknown widget token", "token", c.token)
			h.teardownToken(c.token, "Invalid widget token")
			return
		}
	}

	now := h.clock.Now().UnixMilli()
	for _, sub := range conns {
		outcome, ok := c.results[sub.mode]
		if !ok || outcome.err != nil {
			if outcome.err != nil {
				slog.Warn("Widget render failed", "token", c.token, "mode", string(sub.mode), "error", outcome.err)
			}
			continue
		}
		if outcome.digest == sub.lastDigest {
			metrics.WidgetPushesDeduped.Inc()
			continue
		}
		sub.lastDigest = outcome.digest
		env := &domain.Envelope{
			Type:    domain.MessageWidgetData,
			Ts:      now,
			Payload: outcome.data,
		}
		if sub.writer.TrySend(env.Encode()) {
			metrics.WidgetPushesTotal.Inc()
		} else {
			slog.Warn("Widget subscriber send buffer full", "token", c.token)
		}
	}

	// Subscribers or notifications that arrived mid-render get a fresh pass.
	if h.dirty[c.token] {
		h.startRender(c.token)
	}
}

func (h *Hub) teardownToken(token, reason string) {
	conns := h.subs[token]
	delete(h.subs, token)
	delete(h.dirty, token)
	delete(h.inflight, token)
	metrics.WidgetTokensActive.Set(float64(len(h.subs)))

	errFrame := domain.ErrorEnvelope(reason).Encode()
	for conn, sub := range conns {
		delete(h.conns, conn)
		metrics.WidgetSubscribersConnected.Dec()
		sub.writer.StopWithFrame(errFrame, reason)
	}
}

func (h *Hub) handleStop() {
	for token := range h.subs {
		h.teardownToken(token, "Server shutting down")
	}
}

func (h *Hub) sendDirect(conn domain.Conn, env *domain.Envelope) {
	if err := conn.Send(env.Encode()); err != nil {
		slog.Debug("Direct send failed", "error", err)
	}
}
