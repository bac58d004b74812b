// Package config tests.
package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "ws://localhost:18789/ws/gateway", cfg.GatewayURL)
	assert.Equal(t, "scc-dashboard", cfg.ClientID)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectDebounce)
	assert.Equal(t, 1*time.Second, cfg.BackoffFloor)
	assert.Equal(t, 2.0, cfg.BackoffFactor)
	assert.Equal(t, 30*time.Second, cfg.BackoffCeiling)
	assert.Equal(t, ":8090", cfg.OpsListenAddr)
	assert.Equal(t, ":8080", cfg.MetricsListenAddr)
}

func TestLoad_Overrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("SCC_GATEWAY_URL", "wss://gateway.example.com/ws/gateway")
	t.Setenv("SCC_GATEWAY_TOKEN", "secret")
	t.Setenv("SCC_BACKOFF_CEILING", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "wss://gateway.example.com/ws/gateway", cfg.GatewayURL)
	assert.Equal(t, "secret", cfg.GatewayToken)
	assert.Equal(t, 2*time.Minute, cfg.BackoffCeiling)
}

func TestLoad_RejectsNonWebSocketURL(t *testing.T) {
	os.Clearenv()
	t.Setenv("SCC_GATEWAY_URL", "http://gateway.example.com")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws://")
}

func TestLoad_RejectsBadBackoff(t *testing.T) {
	os.Clearenv()
	t.Setenv("SCC_BACKOFF_FACTOR", "0.5")
	_, err := Load()
	require.Error(t, err)

	os.Clearenv()
	t.Setenv("SCC_BACKOFF_FLOOR", "1m")
	t.Setenv("SCC_BACKOFF_CEILING", "10s")
	_, err = Load()
	require.Error(t, err)
}

func TestScopeList(t *testing.T) {
	cfg := &Config{Scopes: "operator.admin, chat.write ,"}
	assert.Equal(t, []string{"operator.admin", "chat.write"}, cfg.ScopeList())

	cfg.Scopes = ""
	assert.Empty(t, cfg.ScopeList())
}

func TestMemoryEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.MemoryEnabled())

	cfg.APIURL = "http://localhost:3001"
	assert.True(t, cfg.MemoryEnabled())
}
