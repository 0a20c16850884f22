package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Zain-surge/thevillage-backend/internal/domain"
	"github.com/Zain-surge/thevillage-backend/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	session *Session
	errCh   chan error
}

type unregisterCmd struct {
	baseHubCmd
	session *Session
}

type publishCmd struct {
	baseHubCmd
	event domain.Event
	data  []byte
}

type clientCountCmd struct {
	baseHubCmd
	tenant  string
	replyCh chan int
}

type stopCmd struct {
	baseHubCmd
}

// Options bound the hub's per-session delivery behaviour.
type Options struct {
	SendTimeout         time.Duration
	SendBuffer          int
	MaxClientsPerTenant int
}

func (o Options) withDefaults() Options {
	if o.SendTimeout <= 0 {
		o.SendTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 16
	}
	if o.MaxClientsPerTenant <= 0 {
		o.MaxClientsPerTenant = 50
	}
	return o
}

// Hub owns the registry of client sessions and performs tenant-scoped
// fan-out. All registry mutation happens on a single goroutine fed by a
// command channel, so registration, removal and broadcast iteration cannot
// race. Events for a tenant reach each of its sessions in publish order;
// there is no replay for sessions that connect later.
type Hub struct {
	cmdCh   chan hubCmd
	clock   clockwork.Clock
	opts    Options
	tenants map[string]map[*Session]struct{}
	done    chan struct{}
}

// NewHub creates the hub and starts its actor goroutine.
func NewHub(clock clockwork.Clock, opts Options) *Hub {
	h := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		clock:   clock,
		opts:    opts.withDefaults(),
		tenants: make(map[string]map[*Session]struct{}),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Register adds a session under its tenant scope and starts its writer.
// Idempotent per session. Returns an error if the tenant is at its client
// limit or the hub is stopped.
func (h *Hub) Register(s *Session) error {
	errCh := make(chan error, 1)
	select {
	case h.cmdCh <- registerCmd{session: s, errCh: errCh}:
	case <-h.done:
		return domain.ErrHubStopped
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a session. Safe to call repeatedly and concurrently
// with an in-flight publish.
func (h *Hub) Unregister(s *Session) {
	select {
	case h.cmdCh <- unregisterCmd{session: s}:
	case <-h.done:
	}
}

// Publish delivers the event to every session scoped to the event's tenant.
// A tenant with no sessions drops the event; push is a convenience layer,
// not a durable log.
func (h *Hub) Publish(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event for fan-out", "type", event.Type, "error", err)
		return
	}
	select {
	case h.cmdCh <- publishCmd{event: event, data: data}:
	case <-h.done:
	}
}

// ClientCount returns the number of sessions scoped to a tenant, or -1 if
// the hub did not answer in time.
func (h *Hub) ClientCount(tenant string) int {
	replyCh := make(chan int, 1)
	select {
	case h.cmdCh <- clientCountCmd{tenant: tenant, replyCh: replyCh}:
	case <-h.done:
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every session and shuts the actor down. Blocks until the
// goroutine exits or the stop timeout is reached.
func (h *Hub) Stop() {
	select {
	case h.cmdCh <- stopCmd{}:
	case <-h.done:
		return
	}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c.session)
		case publishCmd:
			h.handlePublish(c)
		case clientCountCmd:
			c.replyCh <- len(h.tenants[c.tenant])
		case stopCmd:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	s := c.session

	sessions, exists := h.tenants[s.Tenant]
	if !exists {
		sessions = make(map[*Session]struct{})
		h.tenants[s.Tenant] = sessions
	}

	if _, registered := sessions[s]; registered {
		c.errCh <- nil
		return
	}

	if len(sessions) >= h.opts.MaxClientsPerTenant {
		slog.Warn("Rejecting session: tenant client limit reached",
			"tenant", s.Tenant, "limit", h.opts.MaxClientsPerTenant)
		_ = s.conn.Close()
		s.setState(StateClosed)
		c.errCh <- fmt.Errorf("max clients per tenant (%d) reached", h.opts.MaxClientsPerTenant)
		return
	}

	s.writer = newSessionWriter(s.conn, h.clock, h.opts.SendBuffer, h.opts.SendTimeout)
	s.setState(StateOpen)
	sessions[s] = struct{}{}

	metrics.HubConnectedClients.Inc()
	metrics.HubActiveTenants.Set(float64(len(h.tenants)))

	slog.Debug("Session registered",
		"session_id", s.ID.String(), "tenant", s.Tenant, "tenant_clients", len(sessions))
	c.errCh <- nil
}

func (h *Hub) handleUnregister(s *Session) {
	sessions, exists := h.tenants[s.Tenant]
	if !exists {
		return
	}
	if _, registered := sessions[s]; !registered {
		return
	}

	s.setState(StateClosing)
	s.writer.stop()
	s.setState(StateClosed)
	delete(sessions, s)

	metrics.HubConnectedClients.Dec()

	if len(sessions) == 0 {
		delete(h.tenants, s.Tenant)
		metrics.HubActiveTenants.Set(float64(len(h.tenants)))
	}

	slog.Debug("Session unregistered",
		"session_id", s.ID.String(), "tenant", s.Tenant, "remaining", len(sessions))
}

func (h *Hub) handlePublish(c publishCmd) {
	sessions, exists := h.tenants[c.event.Tenant]
	if !exists {
		slog.Debug("No sessions for tenant, dropping event",
			"tenant", c.event.Tenant, "type", c.event.Type)
		return
	}

	var slow []*Session
	for s := range sessions {
		select {
		case s.writer.sendCh <- c.data:
		default:
			slow = append(slow, s)
		}
	}

	for _, s := range slow {
		slog.Warn("Disconnecting slow session",
			"session_id", s.ID.String(), "tenant", s.Tenant)
		metrics.SlowClientsEvicted.Inc()
		h.handleUnregister(s)
	}

	metrics.EventsPublished.WithLabelValues(string(c.event.Type)).Inc()
}

func (h *Hub) handleStop() {
	total := 0
	for tenant, sessions := range h.tenants {
		for s := range sessions {
			s.setState(StateClosing)
			s.writer.stopGraceful("server shutting down")
			s.setState(StateClosed)
			total++
		}
		delete(h.tenants, tenant)
	}
	metrics.HubConnectedClients.Sub(float64(total))
	metrics.HubActiveTenants.Set(0)
	slog.Info("Hub shutdown complete", "disconnected_clients", total)
}
