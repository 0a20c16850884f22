// Package router stamps change events with their tenant and decides whether
// they may be pushed. It is pure: no I/O, no shared state, deterministic for
// a given event and origin whitelist.
package router

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Zain-surge/thevillage-backend/internal/domain"
)

// ErrOriginSuppressed marks order_created events whose origin is not on the
// push whitelist. They are not errors in the data, just not push material.
var ErrOriginSuppressed = errors.New("order origin suppressed from push")

type Router struct {
	allowed map[domain.Origin]struct{}
}

// New builds a router with the given order-origin whitelist for
// order_created events. The other event types are never origin-filtered.
func New(origins []domain.Origin) *Router {
	allowed := make(map[domain.Origin]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &Router{allowed: allowed}
}

// RouteOrder builds the order_created event for an enriched order. The tenant
// comes from the order row itself, never from client input, so the event can
// only reach sessions scoped to that row's tenant.
func (r *Router) RouteOrder(detail *domain.OrderDetail) (domain.Event, error) {
	if detail.Tenant == "" {
		return domain.Event{}, fmt.Errorf("order %d: %w", detail.OrderID, domain.ErrUnknownTenant)
	}
	if _, ok := r.allowed[detail.Origin]; !ok {
		return domain.Event{}, fmt.Errorf("order %d origin %q: %w", detail.OrderID, detail.Origin, ErrOriginSuppressed)
	}

	data, err := json.Marshal(detail)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal order detail: %w", err)
	}

	return domain.Event{
		Type:   domain.EventOrderCreated,
		Tenant: detail.Tenant,
		Data:   data,
	}, nil
}

// RouteRaw stamps a self-contained notification payload with its tenant and
// forwards it verbatim. Payloads with no determinable tenant are rejected,
// never forwarded with a guessed scope.
func (r *Router) RouteRaw(n domain.Notification) (domain.Event, error) {
	var envelope struct {
		Tenant string `json:"tenant"`
	}
	if err := json.Unmarshal([]byte(n.Payload), &envelope); err != nil {
		return domain.Event{}, fmt.Errorf("decode %s payload: %w", n.Channel, err)
	}
	if envelope.Tenant == "" {
		return domain.Event{}, fmt.Errorf("%s payload: %w", n.Channel, domain.ErrUnknownTenant)
	}

	eventType := n.Channel.EventType()
	if eventType == "" {
		return domain.Event{}, fmt.Errorf("unknown channel %q", n.Channel)
	}

	return domain.Event{
		Type:   eventType,
		Tenant: envelope.Tenant,
		Data:   json.RawMessage(n.Payload),
	}, nil
}
