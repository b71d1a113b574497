package room

import (
	"encoding/json"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/lulajax/streamer-hub/internal/domain"
	"github.com/lulajax/streamer-hub/internal/metrics"
	"github.com/lulajax/streamer-hub/internal/transport"
)

// hubCmd is the command interface for the hub actor. All state lives inside
// the run goroutine, so producer registration is an atomic check-then-set by
// construction.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type joinCmd struct {
	baseHubCmd
	conn   domain.Conn
	roomID string
	role   string
	token  string
}

type relayCmd struct {
	baseHubCmd
	conn    domain.Conn
	kind    domain.MessageType // state or event
	payload json.RawMessage
}

type heartbeatCmd struct {
	baseHubCmd
	conn domain.Conn
}

type disconnectCmd struct {
	baseHubCmd
	conn domain.Conn
}

type statsCmd struct {
	baseHubCmd
	replyChannel chan []RoomStats
}

type stopCmd struct {
	baseHubCmd
}

// RoomStats is a point-in-time view of one room, exposed for monitoring.
type RoomStats struct {
	RoomID      string `json:"roomId"`
	HasProducer bool   `json:"hasProducer"`
	Consumers   int    `json:"consumerCount"`
	Seq         uint64 `json:"latestSeq"`
}

type client struct {
	conn   domain.Conn
	writer *transport.Writer
	roomID string
	role   domain.Role
}

type roomState struct {
	producer  *client
	consumers map[domain.Conn]*client
	latest    *domain.Envelope // last stamped state message
	seq       uint64
}

// Hub relays producer messages to room consumers. One goroutine owns all
// room and connection state; public methods enqueue commands and return.
type Hub struct {
	cmdCh     chan hubCmd
	clock     clockwork.Clock
	validator domain.TokenValidator
	rooms     map[string]*roomState
	clients   map[domain.Conn]*client
	done      chan struct{}
}

// NewHub creates the hub and starts its actor goroutine. validator checks
// join tokens; a nil validator accepts every non-empty token.
func NewHub(validator domain.TokenValidator, clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:     make(chan hubCmd, 256),
		clock:     clock,
		validator: validator,
		rooms:     make(map[string]*roomState),
		clients:   make(map[domain.Conn]*client),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

// Join processes a join envelope for conn. Validation failures send an error
// frame and close the connection.
func (h *Hub) Join(conn domain.Conn, roomID, role, token string) {
	h.cmdCh <- joinCmd{conn: conn, roomID: roomID, role: role, token: token}
}

// State relays a state message: stamped, retained, broadcast to consumers.
func (h *Hub) State(conn domain.Conn, payload json.RawMessage) {
	h.cmdCh <- relayCmd{conn: conn, kind: domain.MessageState, payload: payload}
}

// Event relays a one-shot event: stamped and broadcast, not retained.
func (h *Hub) Event(conn domain.Conn, payload json.RawMessage) {
	h.cmdCh <- relayCmd{conn: conn, kind: domain.MessageEvent, payload: payload}
}

// Heartbeat echoes a heartbeat with the server timestamp to the sender only.
func (h *Hub) Heartbeat(conn domain.Conn) {
	h.cmdCh <- heartbeatCmd{conn: conn}
}

// Disconnect deregisters conn from its room. Safe to call for connections
// that never joined.
func (h *Hub) Disconnect(conn domain.Conn) {
	h.cmdCh <- disconnectCmd{conn: conn}
}

// Stats returns a snapshot of all rooms.
func (h *Hub) Stats() []RoomStats {
	replyCh := make(chan []RoomStats, 1)
	select {
	case h.cmdCh <- statsCmd{replyChannel: replyCh}:
		return <-replyCh
	case <-h.done:
		return nil
	}
}

// Stop closes every connection and shuts the actor down.
func (h *Hub) Stop() {
	select {
	case h.cmdCh <- stopCmd{}:
		<-h.done
	case <-h.done:
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case joinCmd:
			h.handleJoin(c)
		case relayCmd:
			h.handleRelay(c)
		case heartbeatCmd:
			h.handleHeartbeat(c)
		case disconnectCmd:
			h.handleDisconnect(c.conn)
		case statsCmd:
			c.replyChannel <- h.collectStats()
		case stopCmd:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleJoin(c joinCmd) {
	if _, joined := h.clients[c.conn]; joined {
		// Role and room are immutable after join; a repeated join is a
		// protocol violation but the room keeps running.
		h.sendToClient(h.clients[c.conn], domain.ErrorEnvelope("already joined"))
		return
	}

	if c.roomID == "" {
		h.rejectJoin(c.conn, "missing_room", "Missing roomId")
		return
	}

	role, ok := domain.ParseRole(c.role)
	if !ok {
		h.rejectJoin(c.conn, "bad_role", "Invalid or missing role. Must be 'producer' or 'consumer'")
		return
	}

	if err := h.validateToken(c.token); err != nil {
		h.rejectJoin(c.conn, "bad_token", "Invalid or expired token")
		return
	}

	r, exists := h.rooms[c.roomID]
	if !exists {
		r = &roomState{consumers: make(map[domain.Conn]*client)}
		h.rooms[c.roomID] = r
		metrics.RoomsActive.Set(float64(len(h.rooms)))
	}

	cl := &client{conn: c.conn, roomID: c.roomID, role: role}

	if role == domain.RoleProducer {
		if r.producer != nil {
			h.rejectJoin(c.conn, "producer_exists", "Room already has a producer. Only one producer allowed per room.")
			h.reclaimIfEmpty(c.roomID, r)
			return
		}
		cl.writer = transport.NewWriter(c.conn, h.clock)
		r.producer = cl
		h.clients[c.conn] = cl
		metrics.RoomProducersActive.Inc()
		slog.Info("Producer joined room", "room_id", c.roomID, "remote", c.conn.RemoteAddr())

		h.sendToClient(cl, &domain.Envelope{
			Type:    domain.MessageJoinSuccess,
			RoomID:  c.roomID,
			Role:    domain.RoleProducer,
			Message: "Connected as producer",
		})
		return
	}

	cl.writer = transport.NewWriter(c.conn, h.clock)
	r.consumers[c.conn] = cl
	h.clients[c.conn] = cl
	metrics.RoomConsumersConnected.Inc()
	slog.Info("Consumer joined room", "room_id", c.roomID, "consumers", len(r.consumers))

	h.sendToClient(cl, &domain.Envelope{
		Type:    domain.MessageJoinSuccess,
		RoomID:  c.roomID,
		Role:    domain.RoleConsumer,
		Message: "Connected as consumer",
	})

	if r.latest != nil {
		h.sendToClient(cl, snapshotEnvelope(c.roomID, r, h.now()))
	} else {
		h.sendToClient(cl, &domain.Envelope{
			Type:    domain.MessageWaiting,
			RoomID:  c.roomID,
			Message: "Waiting for producer to connect",
		})
	}
}

func (h *Hub) handleRelay(c relayCmd) {
	cl, joined := h.clients[c.conn]
	if !joined {
		// Nothing but join is accepted before joining; close per policy.
		h.sendDirect(c.conn, domain.ErrorEnvelope("not joined"))
		_ = c.conn.Close()
		return
	}

	r := h.rooms[cl.roomID]
	if cl.role != domain.RoleProducer || r == nil || r.producer == nil || r.producer.conn != c.conn {
		// The producer slot is re-checked on every message; a stale producer
		// may have been evicted since its last send.
		slog.Warn("Dropping message from non-producer", "room_id", cl.roomID, "type", string(c.kind), "remote", c.conn.RemoteAddr())
		h.sendToClient(cl, domain.ErrorEnvelope("Not authorized to send "+string(c.kind)))
		return
	}

	r.seq++
	stamped := &domain.Envelope{
		Type:    c.kind,
		RoomID:  cl.roomID,
		Seq:     r.seq,
		Ts:      h.now(),
		Payload: c.payload,
	}
	if c.kind == domain.MessageState {
		r.latest = stamped
	}

	h.broadcast(cl.roomID, r, stamped.Encode())
	metrics.RoomMessagesRelayed.WithLabelValues(string(c.kind)).Inc()
	slog.Debug("Message relayed", "room_id", cl.roomID, "type", string(c.kind), "seq", r.seq)
}

func (h *Hub) handleHeartbeat(c heartbeatCmd) {
	cl, joined := h.clients[c.conn]
	if !joined {
		h.sendDirect(c.conn, domain.ErrorEnvelope("not joined"))
		_ = c.conn.Close()
		return
	}
	h.sendToClient(cl, &domain.Envelope{Type: domain.MessageHeartbeat, Ts: h.now()})
}

func (h *Hub) handleDisconnect(conn domain.Conn) {
	cl, joined := h.clients[conn]
	if !joined {
		return
	}
	delete(h.clients, conn)

	r := h.rooms[cl.roomID]
	if r == nil {
		cl.writer.Stop()
		return
	}

	if cl.role == domain.RoleProducer {
		// A newer producer may already hold the slot if this close event was
		// processed late; only remove ourselves.
		if r.producer != nil && r.producer.conn == conn {
			r.producer = nil
			metrics.RoomProducersActive.Dec()
			// State is intentionally retained so later snapshots still carry
			// the last known state, stale or not.
			offline := &domain.Envelope{
				Type:    domain.MessageProducerOffline,
				RoomID:  cl.roomID,
				Message: "Producer disconnected",
			}
			h.broadcast(cl.roomID, r, offline.Encode())
			slog.Info("Producer left room", "room_id", cl.roomID)
		}
	} else {
		if _, ok := r.consumers[conn]; ok {
			delete(r.consumers, conn)
			metrics.RoomConsumersConnected.Dec()
			slog.Debug("Consumer left room", "room_id", cl.roomID, "remaining", len(r.consumers))
		}
	}

	cl.writer.Stop()
	h.reclaimIfEmpty(cl.roomID, r)
}

// broadcast fans data out to every consumer, best effort. A consumer with a
// full buffer is evicted rather than allowed to stall the others.
func (h *Hub) broadcast(roomID string, r *roomState, data []byte) {
	var slow []domain.Conn
	for conn, consumer := range r.consumers {
		if !consumer.writer.TrySend(data) {
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow consumer", "room_id", roomID)
		metrics.RoomSlowConsumersEvicted.Inc()
		h.handleDisconnect(conn)
	}
}

func (h *Hub) handleStop() {
	for _, cl := range h.clients {
		cl.writer.StopWithReason("Server shutting down")
	}
	h.clients = make(map[domain.Conn]*client)
	h.rooms = make(map[string]*roomState)
	metrics.RoomsActive.Set(0)
}

func (h *Hub) collectStats() []RoomStats {
	stats := make([]RoomStats, 0, len(h.rooms))
	for roomID, r := range h.rooms {
		stats = append(stats, RoomStats{
			RoomID:      roomID,
			HasProducer: r.producer != nil,
			Consumers:   len(r.consumers),
			Seq:         r.seq,
		})
	}
	return stats
}

func (h *Hub) reclaimIfEmpty(roomID string, r *roomState) {
	if r.producer == nil && len(r.consumers) == 0 {
		delete(h.rooms, roomID)
		metrics.RoomsActive.Set(float64(len(h.rooms)))
		slog.Info("Room reclaimed", "room_id", roomID)
	}
}

func (h *Hub) validateToken(token string) error {
	if token == "" {
		return domain.ErrInvalidToken
	}
	if h.validator == nil {
		return nil
	}
	return h.validator.Validate(token)
}

// rejectJoin fails a join closed: error frame, then close. The connection has
// no writer yet, so the frame is written directly.
func (h *Hub) rejectJoin(conn domain.Conn, reason, msg string) {
	metrics.RoomJoinsRejected.WithLabelValues(reason).Inc()
	slog.Warn("Join rejected", "reason", reason, "remote", conn.RemoteAddr())
	h.sendDirect(conn, domain.ErrorEnvelope(msg))
	_ = conn.Close()
}

func (h *Hub) sendDirect(conn domain.Conn, env *domain.Envelope) {
	if err := conn.Send(env.Encode()); err != nil {
		slog.Debug("Direct send failed", "error", err)
	}
}

func (h *Hub) sendToClient(cl *client, env *domain.Envelope) {
	if !cl.writer.TrySend(env.Encode()) {
		slog.Warn("Send buffer full", "room_id", cl.roomID, "role", string(cl.role))
	}
}

func (h *Hub) now() int64 {
	return h.clock.Now().UnixMilli()
}

// snapshotEnvelope builds the snapshot sent to a late-joining consumer. The
// payload is the retained state's payload, or the whole retained message when
// the producer sent none.
func snapshotEnvelope(roomID string, r *roomState, now int64) *domain.Envelope {
	payload := r.latest.Payload
	if len(payload) == 0 {
		payload = r.latest.Encode()
	}
	return &domain.Envelope{
		Type:    domain.MessageSnapshot,
		RoomID:  roomID,
		Seq:     r.seq,
		Ts:      now,
		Payload: payload,
	}
}
