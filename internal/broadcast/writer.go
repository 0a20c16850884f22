package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Zain-surge/thevillage-backend/internal/metrics"
)

const (
	pingInterval = 30 * time.Second
	pongDeadline = 60 * time.Second
)

// sessionWriter owns all writes to one connection. Sends go through a bounded
// channel so a stalled peer backs up its own buffer instead of the hub; the
// hub evicts the session when the buffer stays full.
type sessionWriter struct {
	conn         *websocket.Conn
	clock        clockwork.Clock
	writeTimeout time.Duration
	sendCh       chan []byte
	done         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

func newSessionWriter(conn *websocket.Conn, clock clockwork.Clock, buffer int, writeTimeout time.Duration) *sessionWriter {
	w := &sessionWriter{
		conn:         conn,
		clock:        clock,
		writeTimeout: writeTimeout,
		sendCh:       make(chan []byte, buffer),
		done:         make(chan struct{}),
	}
	w.configurePongHandler()
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *sessionWriter) run() {
	ticker := w.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer w.wg.Done()

	for {
		select {
		case msg, ok := <-w.sendCh:
			if !ok {
				return
			}
			w.updateWriteDeadline()
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.Chan():
			w.updateWriteDeadline()
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *sessionWriter) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
	w.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing. The run
// goroutine must exit first so the close frame is not a concurrent write.
func (w *sessionWriter) stopGraceful(reason string) {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		w.updateWriteDeadline()
		_ = w.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = w.conn.Close()
	})
	w.wg.Wait()
}

func (w *sessionWriter) configurePongHandler() {
	w.updateReadDeadline()
	w.conn.SetPongHandler(func(string) error {
		w.updateReadDeadline()
		return nil
	})
}

func (w *sessionWriter) updateWriteDeadline() {
	_ = w.conn.SetWriteDeadline(w.clock.Now().Add(w.writeTimeout))
}

func (w *sessionWriter) updateReadDeadline() {
	_ = w.conn.SetReadDeadline(w.clock.Now().Add(pongDeadline))
}
