package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Zain-surge/thevillage-backend/internal/domain"
)

// NotifySource is the store's commit-time change feed, consumed over a
// dedicated connection with LISTEN/NOTIFY. The connection is pinned for the
// lifetime of the source; when it breaks, Next returns an error and the
// supervisor builds a fresh source.
type NotifySource struct {
	conn   *pgxpool.Conn
	closed bool
}

// NewNotifySource acquires a dedicated connection and subscribes to the
// given channels.
func NewNotifySource(ctx context.Context, pool *pgxpool.Pool, channels ...domain.Channel) (*NotifySource, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}

	for _, ch := range channels {
		stmt := "LISTEN " + pgx.Identifier{string(ch)}.Sanitize()
		if _, err := conn.Exec(ctx, stmt); err != nil {
			conn.Release()
			return nil, fmt.Errorf("failed to LISTEN on %s: %w", ch, err)
		}
	}

	slog.Info("Subscribed to change channels", "channels", len(channels))
	return &NotifySource{conn: conn}, nil
}

// Next blocks until a notification arrives. An error means the subscription
// connection is gone; there is no in-place recovery.
func (s *NotifySource) Next(ctx context.Context) (domain.Notification, error) {
	if s.closed {
		return domain.Notification{}, domain.ErrSourceClosed
	}

	pn, err := s.conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("failed to wait for notification: %w", err)
	}

	return domain.Notification{
		Channel: domain.Channel(pn.Channel),
		Payload: pn.Payload,
	}, nil
}

// Close releases the dedicated connection. The connection is destroyed
// rather than returned to the pool so stale LISTEN registrations never leak
// into unrelated queries.
func (s *NotifySource) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	// Closing the underlying conn marks it unhealthy; Release then discards it.
	_ = s.conn.Conn().Close(ctx)
	s.conn.Release()
	return nil
}
