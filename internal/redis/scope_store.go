package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Zain-surge/thevillage-backend/internal/domain"
)

func scopeKey(token string) string {
	return "scope:" + token
}

// ScopeStore implements domain.ScopeResolver. The auth service writes a
// token -> tenant entry when an operator signs in; the websocket handshake
// reads it back. The hub itself never sees tokens.
type ScopeStore struct {
	rdb *redis.Client
}

// NewScopeStore creates a ScopeStore on the shared client.
func NewScopeStore(client *Client) *ScopeStore {
	return &ScopeStore{rdb: client.Underlying()}
}

// ResolveScope returns the tenant for a handshake token, or ErrScopeNotFound
// for unknown or expired tokens.
func (s *ScopeStore) ResolveScope(ctx context.Context, token string) (string, error) {
	tenant, err := s.rdb.Get(ctx, scopeKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrScopeNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve scope: %w", err)
	}
	if tenant == "" {
		return "", domain.ErrScopeNotFound
	}
	return tenant, nil
}

// GrantScope stores a token -> tenant entry with the given TTL. Called by
// the auth collaborator when it issues a terminal token.
func (s *ScopeStore) GrantScope(ctx context.Context, token, tenant string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, scopeKey(token), tenant, ttl).Err(); err != nil {
		return fmt.Errorf("failed to grant scope: %w", err)
	}
	return nil
}

// RevokeScope deletes a token entry, disconnecting is left to read-deadline
// expiry on the session itself.
func (s *ScopeStore) RevokeScope(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, scopeKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to revoke scope: %w", err)
	}
	return nil
}
