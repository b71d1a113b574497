package transport

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lulajax/streamer-hub/internal/domain"
	"github.com/lulajax/streamer-hub/internal/metrics"
)

const (
	pingInterval      = 30 * time.Second
	messageBufferSize = 16
)

// Writer serializes all writes to a single connection through one goroutine.
// TrySend never blocks; a full buffer means the client is too slow and the
// hub decides whether to evict it.
type Writer struct {
	conn        domain.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewWriter starts the writer goroutine for conn.
func NewWriter(conn domain.Conn, clock clockwork.Clock) *Writer {
	w := &Writer{
		conn:        conn,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Writer) run() {
	ticker := w.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer w.wg.Done()

	for {
		select {
		case msg, ok := <-w.sendChannel:
			if !ok {
				return
			}
			start := w.clock.Now()
			if err := w.conn.Send(msg); err != nil {
				metrics.ConnSendFailures.Inc()
				return
			}
			metrics.ConnSendDuration.Observe(w.clock.Since(start).Seconds())
		case <-ticker.Chan():
			if err := w.conn.Ping(); err != nil {
				metrics.ConnPingFailures.Inc()
				return
			}
		case <-w.doneChannel:
			return
		}
	}
}

// TrySend enqueues a message without blocking. Returns false when the
// client's buffer is full.
func (w *Writer) TrySend(data []byte) bool {
	select {
	case w.sendChannel <- data:
		return true
	default:
		return false
	}
}

// Stop shuts down the writer goroutine and closes the connection.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.doneChannel)
		_ = w.conn.Close()
	})
	w.wg.Wait()
}

// StopWithFrame stops the writer goroutine, writes one final frame directly,
// then closes with reason. Used to deliver an error frame before closing;
// the direct write is safe because the run goroutine has already exited.
func (w *Writer) StopWithFrame(frame []byte, reason string) {
	w.stopOnce.Do(func() {
		close(w.doneChannel)
		w.wg.Wait()
		_ = w.conn.Send(frame)
		if wc, ok := w.conn.(*WSConn); ok {
			_ = wc.CloseWithReason(reason)
			return
		}
		_ = w.conn.Close()
	})
	w.wg.Wait()
}

// StopWithReason stops the writer, then writes a close frame with reason when
// the transport supports it.
func (w *Writer) StopWithReason(reason string) {
	w.stopOnce.Do(func() {
		close(w.doneChannel)
		w.wg.Wait()
		if wc, ok := w.conn.(*WSConn); ok {
			_ = wc.CloseWithReason(reason)
			return
		}
		_ = w.conn.Close()
	})
	w.wg.Wait()
}
