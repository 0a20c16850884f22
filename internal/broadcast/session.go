package broadcast

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionState is the lifecycle state of a client session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Session is one operator terminal connection. It is read-only from the
// client's perspective: the hub pushes events, the client sends nothing but
// control frames. The tenant scope is fixed at handshake time and the hub
// never delivers another tenant's events to it.
type Session struct {
	ID     uuid.UUID
	Tenant string

	conn   *websocket.Conn
	state  atomic.Int32
	writer *sessionWriter
}

// NewSession wraps an upgraded connection with its resolved tenant scope.
// The session stays in the connecting state until the hub registers it.
func NewSession(tenant string, conn *websocket.Conn) *Session {
	return &Session{
		ID:     uuid.New(),
		Tenant: tenant,
		conn:   conn,
	}
}

// State reports the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// ReadUntilClosed blocks consuming control frames until the connection drops
// or is closed. Callers use the return to trigger unregistration.
func (s *Session) ReadUntilClosed() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
