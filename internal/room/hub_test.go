package room

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lulajax/streamer-hub/internal/domain"
)

// fakeConn is an in-memory domain.Conn capturing everything the hub sends.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) Ping() error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "fake:0" }

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) envelopes() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env domain.Envelope
		if json.Unmarshal(f, &env) == nil {
			out = append(out, env)
		}
	}
	return out
}

// waitForEnvelopes polls until conn has received at least n frames.
func waitForEnvelopes(t *testing.T, conn *fakeConn, n int) []domain.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		envs := conn.envelopes()
		if len(envs) >= n {
			return envs
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d envelopes, got %d", n, len(conn.envelopes()))
	return nil
}

func waitForClosed(t *testing.T, conn *fakeConn) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn.isClosed() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for connection close")
}

type acceptAllValidator struct{}

func (acceptAllValidator) Validate(string) error { return nil }

type rejectAllValidator struct{}

func (rejectAllValidator) Validate(string) error { return domain.ErrInvalidToken }

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(acceptAllValidator{}, clockwork.NewRealClock())
	t.Cleanup(hub.Stop)
	return hub
}

func TestHub_ConsumerJoinsEmptyRoom(t *testing.T) {
	hub := newTestHub(t)
	conn := &fakeConn{}

	hub.Join(conn, "r1", "consumer", "tok")
	envs := waitForEnvelopes(t, conn, 2)

	assert.Equal(t, domain.MessageJoinSuccess, envs[0].Type)
	assert.Equal(t, "r1", envs[0].RoomID)
	assert.Equal(t, domain.RoleConsumer, envs[0].Role)
	assert.Equal(t, domain.MessageWaiting, envs[1].Type)
}

func TestHub_StateRelayAndSnapshot(t *testing.T) {
	hub := newTestHub(t)
	producer := &fakeConn{}
	consumer := &fakeConn{}

	hub.Join(producer, "r1", "producer", "tok")
	waitForEnvelopes(t, producer, 1)
	hub.Join(consumer, "r1", "consumer", "tok")
	waitForEnvelopes(t, consumer, 2) // join_success + waiting

	hub.State(producer, json.RawMessage(`{"score":1}`))

	envs := waitForEnvelopes(t, consumer, 3)
	state := envs[2]
	require.Equal(t, domain.MessageState, state.Type)
	assert.Equal(t, uint64(1), state.Seq)
	assert.NotZero(t, state.Ts)
	assert.JSONEq(t, `{"score":1}`, string(state.Payload))

	// Late joiner gets a snapshot before any further traffic.
	late := &fakeConn{}
	hub.Join(late, "r1", "consumer", "tok")
	lateEnvs := waitForEnvelopes(t, late, 2)
	require.Equal(t, domain.MessageSnapshot, lateEnvs[1].Type)
	assert.Equal(t, uint64(1), lateEnvs[1].Seq)
	assert.JSONEq(t, `{"score":1}`, string(lateEnvs[1].Payload))
}

func TestHub_SequenceStrictlyIncreasing(t *testing.T) {
	hub := newTestHub(t)
	producer := &fakeConn{}
	consumer := &fakeConn{}

	hub.Join(producer, "r1", "producer", "tok")
	hub.Join(consumer, "r1", "consumer", "tok")
	waitForEnvelopes(t, consumer, 2)

	hub.State(producer, json.RawMessage(`{"n":1}`))
	hub.Event(producer, json.RawMessage(`{"kind":"gift"}`))
	hub.State(producer, json.RawMessage(`{"n":2}`))

	envs := waitForEnvelopes(t, consumer, 5)
	var last uint64
	for _, env := range envs[2:] {
		require.Greater(t, env.Seq, last, "sequence must strictly increase")
		last = env.Seq
	}
	assert.Equal(t, uint64(3), last)
}

func TestHub_SecondProducerRejected(t *testing.T) {
	hub := newTestHub(t)
	first := &fakeConn{}
	second := &fakeConn{}
	consumer := &fakeConn{}

	hub.Join(first, "r1", "producer", "tok")
	waitForEnvelopes(t, first, 1)
	hub.Join(consumer, "r1", "consumer", "tok")
	waitForEnvelopes(t, consumer, 2)

	hub.Join(second, "r1", "producer", "tok")
	envs := waitForEnvelopes(t, second, 1)
	assert.Equal(t, domain.MessageError, envs[0].Type)
	waitForClosed(t, second)

	// The first producer is undisturbed.
	hub.State(first, json.RawMessage(`{"ok":true}`))
	relayed := waitForEnvelopes(t, consumer, 3)
	assert.Equal(t, domain.MessageState, relayed[2].Type)
	assert.Equal(t, uint64(1), relayed[2].Seq)
}

func TestHub_JoinValidation(t *testing.T) {
	tests := []struct {
		name   string
		roomID string
		role   string
		token  string
	}{
		{"missing room", "", "consumer", "tok"},
		{"bad role", "r1", "moderator", "tok"},
		{"missing token", "r1", "consumer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newTestHub(t)
			conn := &fakeConn{}
			hub.Join(conn, tt.roomID, tt.role, tt.token)
			envs := waitForEnvelopes(t, conn, 1)
			assert.Equal(t, domain.MessageError, envs[0].Type)
			waitForClosed(t, conn)
		})
	}
}

func TestHub_RejectedToken(t *testing.T) {
	hub := NewHub(rejectAllValidator{}, clockwork.NewRealClock())
	t.Cleanup(hub.Stop)

	conn := &fakeConn{}
	hub.Join(conn, "r1", "consumer", "bad")
	envs := waitForEnvelopes(t, conn, 1)
	assert.Equal(t, domain.MessageError, envs[0].Type)
	waitForClosed(t, conn)
}

func TestHub_NonProducerCannotRelay(t *testing.T) {
	hub := newTestHub(t)
	producer := &fakeConn{}
	consumer := &fakeConn{}
	other := &fakeConn{}

	hub.Join(producer, "r1", "producer", "tok")
	hub.Join(consumer, "r1", "consumer", "tok")
	hub.Join(other, "r1", "consumer", "tok")
	waitForEnvelopes(t, consumer, 2)
	waitForEnvelopes(t, other, 2)

	hub.State(other, json.RawMessage(`{"forged":true}`))

	envs := waitForEnvelopes(t, other, 3)
	assert.Equal(t, domain.MessageError, envs[2].Type)
	assert.False(t, other.isClosed(), "impersonation attempt drops the message but keeps the room running")

	// The forged state was never relayed.
	time.Sleep(20 * time.Millisecond)
	for _, env := range consumer.envelopes() {
		assert.NotEqual(t, domain.MessageState, env.Type)
	}
}

func TestHub_PreJoinMessageRejected(t *testing.T) {
	hub := newTestHub(t)
	conn := &fakeConn{}

	hub.State(conn, json.RawMessage(`{"n":1}`))
	envs := waitForEnvelopes(t, conn, 1)
	assert.Equal(t, domain.MessageError, envs[0].Type)
	waitForClosed(t, conn)
}

func TestHub_Heartbeat(t *testing.T) {
	hub := newTestHub(t)
	producer := &fakeConn{}
	consumer := &fakeConn{}

	hub.Join(producer, "r1", "producer", "tok")
	hub.Join(consumer, "r1", "consumer", "tok")
	waitForEnvelopes(t, producer, 1)
	waitForEnvelopes(t, consumer, 2)

	hub.Heartbeat(producer)
	envs := waitForEnvelopes(t, producer, 2)
	assert.Equal(t, domain.MessageHeartbeat, envs[1].Type)
	assert.NotZero(t, envs[1].Ts)

	// Heartbeats touch only the sender.
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, consumer.envelopes(), 2)
}

func TestHub_ProducerDisconnectRetainsState(t *testing.T) {
	hub := newTestHub(t)
	producer := &fakeConn{}
	c1 := &fakeConn{}
	c2 := &fakeConn{}

	hub.Join(producer, "r1", "producer", "tok")
	hub.Join(c1, "r1", "consumer", "tok")
	hub.Join(c2, "r1", "consumer", "tok")
	waitForEnvelopes(t, c1, 2)
	waitForEnvelopes(t, c2, 2)

	hub.State(producer, json.RawMessage(`{"score":7}`))
	waitForEnvelopes(t, c1, 3)
	waitForEnvelopes(t, c2, 3)

	hub.Disconnect(producer)

	for _, conn := range []*fakeConn{c1, c2} {
		envs := waitForEnvelopes(t, conn, 4)
		assert.Equal(t, domain.MessageProducerOffline, envs[3].Type)
	}

	// Retained state still serves snapshots after the producer is gone.
	late := &fakeConn{}
	hub.Join(late, "r1", "consumer", "tok")
	envs := waitForEnvelopes(t, late, 2)
	require.Equal(t, domain.MessageSnapshot, envs[1].Type)
	assert.JSONEq(t, `{"score":7}`, string(envs[1].Payload))
}

func TestHub_ConsumerDisconnectStopsDelivery(t *testing.T) {
	hub := newTestHub(t)
	producer := &fakeConn{}
	consumer := &fakeConn{}

	hub.Join(producer, "r1", "producer", "tok")
	hub.Join(consumer, "r1", "consumer", "tok")
	waitForEnvelopes(t, consumer, 2)

	hub.Disconnect(consumer)

	// Wait until the disconnect is processed, then relay.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		stats := hub.Stats()
		if len(stats) == 1 && stats[0].Consumers == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	hub.State(producer, json.RawMessage(`{"n":1}`))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, consumer.envelopes(), 2, "no send after disconnect")
}

func TestHub_RoomReclaimedWhenEmpty(t *testing.T) {
	hub := newTestHub(t)
	consumer := &fakeConn{}

	hub.Join(consumer, "r1", "consumer", "tok")
	waitForEnvelopes(t, consumer, 2)
	require.Len(t, hub.Stats(), 1)

	hub.Disconnect(consumer)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(hub.Stats()) == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("empty room was not reclaimed")
}

func TestHub_Stats(t *testing.T) {
	hub := newTestHub(t)
	producer := &fakeConn{}
	consumer := &fakeConn{}

	hub.Join(producer, "r1", "producer", "tok")
	hub.Join(consumer, "r1", "consumer", "tok")
	waitForEnvelopes(t, consumer, 2)
	hub.State(producer, json.RawMessage(`{}`))
	waitForEnvelopes(t, consumer, 3)

	stats := hub.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "r1", stats[0].RoomID)
	assert.True(t, stats[0].HasProducer)
	assert.Equal(t, 1, stats[0].Consumers)
	assert.Equal(t, uint64(1), stats[0].Seq)
}

func TestParseEnvelope(t *testing.T) {
	env, err := domain.ParseEnvelope([]byte(`{"type":"join","roomId":"r1","role":"producer","token":"t"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.MessageJoin, env.Type)
	assert.Equal(t, "r1", env.RoomID)

	_, err = domain.ParseEnvelope([]byte(`not json`))
	assert.True(t, errors.Is(err, domain.ErrBadEnvelope))

	_, err = domain.ParseEnvelope([]byte(`{"roomId":"r1"}`))
	assert.True(t, errors.Is(err, domain.ErrBadEnvelope))
}
