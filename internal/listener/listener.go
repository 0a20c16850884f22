// Package listener runs the notification pipeline: it consumes raw change
// notifications from the store, decodes and enriches them, routes them to a
// tenant and hands them to the hub for fan-out.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Zain-surge/thevillage-backend/internal/domain"
	"github.com/Zain-surge/thevillage-backend/internal/metrics"
	"github.com/Zain-surge/thevillage-backend/internal/platform/correlation"
	"github.com/Zain-surge/thevillage-backend/internal/router"
)

const (
	fetchTimeout  = 5 * time.Second
	mirrorTimeout = 5 * time.Second
	mirrorBuffer  = 64
)

// errEnrich tags store failures during enrichment so drops are counted apart
// from decode errors.
var errEnrich = errors.New("enrichment failed")

// EventPublisher fans a routed event out to connected sessions.
type EventPublisher interface {
	Publish(event domain.Event)
}

// Sequence is the dispatch counter stamped onto published events. It lives
// outside the Listener so the numbering keeps increasing when the supervisor
// rebuilds the listener after a lost subscription.
type Sequence struct {
	n atomic.Uint64
}

// Next returns the next dispatch sequence number.
func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}

// Listener is the single background task owning the change source
// subscription. Notifications are processed strictly sequentially; the
// enrichment reads share one subscription connection and parallel handling
// buys nothing but races.
type Listener struct {
	source    domain.ChangeSource
	store     domain.OrderStore
	router    *router.Router
	publisher EventPublisher
	sink      domain.EventSink
	mirrorCh  chan domain.Event
	clock     clockwork.Clock

	// enrichDelay tolerates line-item writes that commit just after the
	// order insert fires its notification. A workaround for read-after-write
	// visibility lag, not a guarantee: if the detail is still missing after
	// the delay the event is dropped, never retried.
	enrichDelay time.Duration

	seq *Sequence
}

// New wires a listener. sink may be nil when no downstream mirror is
// configured; seq may be nil when no numbering is shared across restarts.
func New(source domain.ChangeSource, store domain.OrderStore, r *router.Router, publisher EventPublisher, sink domain.EventSink, clock clockwork.Clock, enrichDelay time.Duration, seq *Sequence) *Listener {
	l := &Listener{
		source:      source,
		store:       store,
		router:      r,
		publisher:   publisher,
		sink:        sink,
		clock:       clock,
		enrichDelay: enrichDelay,
		seq:         seq,
	}
	if l.seq == nil {
		l.seq = &Sequence{}
	}
	if sink != nil {
		l.mirrorCh = make(chan domain.Event, mirrorBuffer)
	}
	return l
}

// Run consumes notifications until ctx is cancelled or the subscription is
// lost. Per-notification failures are logged and skipped; only subscription
// loss ends the loop, and the caller's supervisor restarts it.
func (l *Listener) Run(ctx context.Context) error {
	slog.Info("Change listener started")

	if l.sink != nil {
		mirrorCtx, cancel := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.runMirror(mirrorCtx)
		}()
		defer func() {
			cancel()
			wg.Wait()
		}()
	}

	for {
		n, err := l.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("change source subscription lost: %w", err)
		}

		nctx := correlation.WithID(ctx, correlation.NewID())
		l.handle(nctx, n)
	}
}

func (l *Listener) handle(ctx context.Context, n domain.Notification) {
	metrics.NotificationsReceived.WithLabelValues(string(n.Channel)).Inc()

	var (
		event domain.Event
		err   error
	)
	switch n.Channel {
	case domain.ChannelNewOrder:
		event, err = l.enrichNewOrder(ctx, n)
	case domain.ChannelOfferUpdate, domain.ChannelShopStatus, domain.ChannelOrderStatus:
		event, err = l.router.RouteRaw(n)
	default:
		slog.WarnContext(ctx, "Notification on unknown channel dropped", "channel", n.Channel)
		metrics.EventsDropped.WithLabelValues("unknown_channel").Inc()
		return
	}
	if err != nil {
		l.drop(ctx, n, err)
		return
	}

	event.Seq = l.seq.Next()

	l.publisher.Publish(event)

	if l.sink != nil {
		select {
		case l.mirrorCh <- event:
		default:
			metrics.MirrorEventsDropped.Inc()
			slog.WarnContext(ctx, "Event mirror backlog full, copy dropped",
				"type", event.Type, "tenant", event.Tenant)
		}
	}
}

// runMirror drains queued event copies to the sink off the pipeline loop.
// A slow or unreachable mirror backs up its own queue and loses copies;
// push delivery never waits on it.
func (l *Listener) runMirror(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-l.mirrorCh:
			appendCtx, cancel := context.WithTimeout(ctx, mirrorTimeout)
			err := l.sink.Append(appendCtx, event)
			cancel()
			if err != nil {
				metrics.MirrorAppendFailures.Inc()
				slog.Warn("Event mirror append failed",
					"type", event.Type, "tenant", event.Tenant, "error", err)
			}
		}
	}
}

// enrichNewOrder resolves the order id payload into the full joined order
// projection. The payload never carries more than the id, so the tenant and
// origin come from the order row itself.
func (l *Listener) enrichNewOrder(ctx context.Context, n domain.Notification) (domain.Event, error) {
	orderID, err := strconv.ParseInt(n.Payload, 10, 64)
	if err != nil {
		return domain.Event{}, fmt.Errorf("decode new order payload %q: %w", n.Payload, err)
	}

	if l.enrichDelay > 0 {
		select {
		case <-l.clock.After(l.enrichDelay):
		case <-ctx.Done():
			return domain.Event{}, ctx.Err()
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	start := l.clock.Now()
	detail, err := l.store.FetchOrderDetail(fetchCtx, orderID)
	metrics.EnrichDuration.Observe(l.clock.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Event{}, fmt.Errorf("order %d detail not yet visible: %w", orderID, err)
		}
		return domain.Event{}, fmt.Errorf("%w: order %d: %w", errEnrich, orderID, err)
	}

	return l.router.RouteOrder(detail)
}

func (l *Listener) drop(ctx context.Context, n domain.Notification, err error) {
	reason := "decode_error"
	level := slog.LevelWarn
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		reason = "enrich_not_found"
	case errors.Is(err, domain.ErrUnknownTenant):
		// Data-integrity problem: an event we cannot scope is never guessed.
		reason = "unknown_tenant"
	case errors.Is(err, router.ErrOriginSuppressed):
		reason = "origin_suppressed"
		level = slog.LevelDebug
	case errors.Is(err, errEnrich), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = "enrich_error"
	}

	metrics.EventsDropped.WithLabelValues(reason).Inc()
	slog.Log(ctx, level, "Notification dropped",
		"channel", n.Channel, "reason", reason, "error", err)
}
