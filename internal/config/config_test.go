package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	// Ensure a clean environment for the keys under test.
	for _, k := range []string{
		"DUETTO_SERVER__PORT",
		"DUETTO_SEC__POLL_INTERVAL",
		"DUETTO_SEC__MONITOR_6K",
		"DUETTO_TV__SYMBOLS",
		"DUETTO_TV__THRESHOLD_PCT",
		"DUETTO_NOTIFY_MIN_PRIORITY",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "0.0.0.0", cfg.ServerHost)
	assert.Equal(t, 8091, cfg.ServerPort)
	assert.Equal(t, 30, cfg.SECPollInterval)
	assert.InDelta(t, 0.1, cfg.SECRateLimit, 1e-9)
	assert.True(t, cfg.Monitor8K)
	assert.False(t, cfg.Monitor6K)
	assert.True(t, cfg.FDAEnabled)
	assert.False(t, cfg.TVEnabled)
	assert.Equal(t, []string{"NASDAQ:AAPL"}, cfg.TVSymbols)
	assert.InDelta(t, 10.0, cfg.TVThresholdPct, 1e-9)
	assert.Equal(t, "discord", cfg.WebhookFormat)
	assert.Equal(t, "rule", cfg.AIProvider)
	assert.False(t, cfg.AIEnabled)
	assert.Equal(t, "low", cfg.NotifyMinPriority)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DUETTO_SERVER__PORT", "9000")
	t.Setenv("DUETTO_SEC__MONITOR_8K", "false")
	t.Setenv("DUETTO_TV__ENABLED", "true")
	t.Setenv("DUETTO_TV__SYMBOLS", "NASDAQ:TSLA, NYSE:GME")
	t.Setenv("DUETTO_TV__THRESHOLD_PCT", "5.5")
	t.Setenv("DUETTO_EMAIL__TO", "a@example.com,b@example.com")
	t.Setenv("DUETTO_NOTIFY_MIN_PRIORITY", "high")

	cfg := Load()

	assert.Equal(t, 9000, cfg.ServerPort)
	assert.False(t, cfg.Monitor8K)
	assert.True(t, cfg.TVEnabled)
	assert.Equal(t, []string{"NASDAQ:TSLA", "NYSE:GME"}, cfg.TVSymbols)
	assert.InDelta(t, 5.5, cfg.TVThresholdPct, 1e-9)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.EmailTo)
	assert.Equal(t, "high", cfg.NotifyMinPriority)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DUETTO_SERVER__PORT", "not-a-port")
	t.Setenv("DUETTO_TV__THRESHOLD_PCT", "many")
	t.Setenv("DUETTO_FDA__ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 8091, cfg.ServerPort)
	assert.InDelta(t, 10.0, cfg.TVThresholdPct, 1e-9)
	assert.True(t, cfg.FDAEnabled)
}
