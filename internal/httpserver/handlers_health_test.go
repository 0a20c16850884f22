package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zain-surge/thevillage-backend/internal/broadcast"
	"github.com/Zain-surge/thevillage-backend/internal/config"
)

func newHealthFixture(t *testing.T, checks []HealthCheck) *httptest.Server {
	t.Helper()

	hub := broadcast.NewHub(clockwork.NewRealClock(), broadcast.Options{})
	t.Cleanup(hub.Stop)

	srv := NewServer(&config.Config{Port: "0"}, hub, &fakeScopes{}, checks)
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	return resp.StatusCode, payload
}

func TestHealthz_ReportsUptime(t *testing.T) {
	ts := newHealthFixture(t, nil)

	status, payload := getJSON(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", payload["status"])
	assert.Contains(t, payload, "uptime")
}

func TestReadyz_AllChecksPass(t *testing.T) {
	ts := newHealthFixture(t, []HealthCheck{
		{Name: "postgres", Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(context.Context) error { return nil }},
	})

	status, payload := getJSON(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", payload["status"])
}

func TestReadyz_FailingCheckNamed(t *testing.T) {
	ts := newHealthFixture(t, []HealthCheck{
		{Name: "postgres", Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	})

	status, payload := getJSON(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unhealthy", payload["status"])
	assert.Equal(t, "redis", payload["failed_check"])
	assert.Contains(t, payload["error"], "connection refused")
}

func TestReadyz_ChecksRunWithDeadline(t *testing.T) {
	ts := newHealthFixture(t, []HealthCheck{
		{Name: "postgres", Check: func(ctx context.Context) error {
			deadline, ok := ctx.Deadline()
			if !ok {
				return errors.New("no deadline set")
			}
			if time.Until(deadline) > readinessProbeTimeout {
				return errors.New("deadline too far out")
			}
			return nil
		}},
	})

	status, _ := getJSON(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusOK, status)
}
