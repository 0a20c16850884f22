package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Zain-surge/thevillage-backend/internal/broadcast"
	"github.com/Zain-surge/thevillage-backend/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Operator terminals are kiosk apps and dashboards served from
		// per-tenant domains; the token is the access control, not the origin.
		return true
	},
}

// handleWebSocket performs the push-session handshake. The tenant scope
// comes from resolving the presented token server-side; nothing the client
// sends picks the tenant directly.
func (s *Server) handleWebSocket(c echo.Context) error {
	token := handshakeToken(c)
	if token == "" {
		return c.String(http.StatusUnauthorized, "Missing token")
	}

	ctx := c.Request().Context()

	tenant, err := s.scopes.ResolveScope(ctx, token)
	if errors.Is(err, domain.ErrScopeNotFound) {
		return c.String(http.StatusUnauthorized, "Unknown token")
	}
	if err != nil {
		slog.Error("Failed to resolve tenant scope", "error", err)
		return c.String(http.StatusInternalServerError, "Internal error")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	session := broadcast.NewSession(tenant, conn)
	if err := s.hub.Register(session); err != nil {
		slog.Warn("Failed to register session", "tenant", tenant, "error", err)
		_ = conn.Close()
		return nil
	}

	slog.Info("Push session opened", "session_id", session.ID.String(), "tenant", tenant)

	// Read pump - blocks until the connection closes. The client never sends
	// application data on this channel; reads only surface disconnects.
	session.ReadUntilClosed()

	s.hub.Unregister(session)
	slog.Info("Push session closed", "session_id", session.ID.String(), "tenant", tenant)

	return nil
}

// handshakeToken pulls the access token from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token query
// parameter.
func handshakeToken(c echo.Context) string {
	if auth := c.Request().Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
	}
	return c.QueryParam("token")
}
