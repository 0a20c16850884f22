package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zain-surge/thevillage-backend/internal/domain"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/orders")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "storefront", cfg.PushOrigins)
	assert.Equal(t, 3*time.Second, cfg.EnrichDelay)
	assert.Equal(t, 5*time.Second, cfg.SendTimeout)
	assert.Equal(t, 50, cfg.MaxClientsPerTenant)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_MissingRedisURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/orders")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoad_EmptyPushOriginsRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PUSH_ORIGINS", " , ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUSH_ORIGINS")
}

func TestAllowedOrigins_DefaultIsStorefrontOnly(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []domain.Origin{domain.OriginStorefront}, cfg.AllowedOrigins())
}

func TestAllowedOrigins_ParsesCommaSeparatedList(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PUSH_ORIGINS", "storefront, phone ,third_party")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t,
		[]domain.Origin{domain.OriginStorefront, domain.OriginPhone, domain.OriginThirdParty},
		cfg.AllowedOrigins())
}

func TestBrokerList_EmptyWhenUnset(t *testing.T) {
	cfg := &Config{}
	assert.Nil(t, cfg.BrokerList())
}

func TestBrokerList_SplitsAndTrims(t *testing.T) {
	cfg := &Config{KafkaBrokers: "broker-1:9092, broker-2:9092"}
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.BrokerList())
}
