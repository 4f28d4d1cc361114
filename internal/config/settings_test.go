package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	settings, err := fromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", settings.Addr())
	assert.Equal(t, "nummer12 family", settings.Title)
	assert.Equal(t, "config/dashboard.json", settings.DashboardFile)
	assert.Equal(t, "de", settings.DashboardLocale)
	assert.Equal(t, 0, settings.FetchConcurrency)
	assert.Equal(t, TransportREST, settings.HomeAssistant.Transport)
	assert.Equal(t, 10*time.Second, settings.HomeAssistant.Timeout)
	assert.False(t, settings.HomeAssistant.Configured())
	assert.False(t, settings.Chat.Configured())
	assert.Equal(t, "x-api-key", settings.Chat.APIKeyHeader)
}

func TestFromLookup_Values(t *testing.T) {
	settings, err := fromLookup(lookupFrom(map[string]string{
		"HOST":                "127.0.0.1",
		"PORT":                "9090",
		"TITLE":               "Familie",
		"HA_BASE_URL":         "http://ha.local:8123/",
		"HA_TOKEN":            " secret ",
		"HA_TRANSPORT":        "WebSocket",
		"UPSTREAM_TIMEOUT":    "2500ms",
		"FETCH_CONCURRENCY":   "4",
		"NUMMER12_CHAT_URL":   "http://chat.local/api/chat",
		"NUMMER12_HEALTH_URL": "http://chat.local/health",
		"NUMMER12_API_KEY":    "k",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", settings.Addr())
	assert.Equal(t, "Familie", settings.Title)
	assert.Equal(t, "http://ha.local:8123", settings.HomeAssistant.BaseURL)
	assert.Equal(t, "secret", settings.HomeAssistant.Token)
	assert.Equal(t, TransportWebSocket, settings.HomeAssistant.Transport)
	assert.Equal(t, 2500*time.Millisecond, settings.HomeAssistant.Timeout)
	assert.Equal(t, 4, settings.FetchConcurrency)
	assert.True(t, settings.HomeAssistant.Configured())
	assert.True(t, settings.Chat.Configured())
	assert.Equal(t, "http://chat.local/health", settings.Chat.ProbeURL())
}

func TestFromLookup_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"port":        {"PORT": "http"},
		"port range":  {"PORT": "70000"},
		"timeout":     {"UPSTREAM_TIMEOUT": "soon"},
		"zero":        {"UPSTREAM_TIMEOUT": "0s"},
		"concurrency": {"FETCH_CONCURRENCY": "-1"},
		"transport":   {"HA_TRANSPORT": "mqtt"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := fromLookup(lookupFrom(env))
			assert.Error(t, err)
		})
	}
}

func TestChat_ProbeURLDefaultsToChatURL(t *testing.T) {
	chat := Chat{URL: "http://chat.local/api/chat"}
	assert.Equal(t, "http://chat.local/api/chat", chat.ProbeURL())
}
