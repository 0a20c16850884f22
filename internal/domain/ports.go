package domain

import "context"

// ChangeSource is a long-lived subscription to the store's commit-time
// notification channels. Next blocks until a notification arrives or the
// subscription fails; a returned error means the subscription is lost and the
// caller must be restarted by its supervisor.
type ChangeSource interface {
	Next(ctx context.Context) (Notification, error)
	Close(ctx context.Context) error
}

// OrderStore reads the denormalized order projection used for enrichment.
// FetchOrderDetail returns ErrOrderNotFound when the order or its line items
// are not yet visible.
type OrderStore interface {
	FetchOrderDetail(ctx context.Context, orderID int64) (*OrderDetail, error)
}

// ScopeResolver resolves a handshake token to a tenant scope. The token comes
// from an authenticated context established out of band; client-supplied data
// alone never determines the scope. Returns ErrScopeNotFound for unknown or
// expired tokens.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, token string) (string, error)
}

// EventSink receives a copy of every event accepted for fan-out. Sinks are
// best-effort: failures are logged by the caller and never block push
// delivery.
type EventSink interface {
	Append(ctx context.Context, event Event) error
}
