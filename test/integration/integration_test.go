package integration

import (
	"context"
	"net/http"
	"testing"

	"familydash/internal/config"
	"familydash/internal/ha"
	"familydash/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dashboardJSON = `{
  "rooms": [
    {"label": "Küche", "entity_id": "light.kitchen"},
    {"label": "Dachboden", "entity_id": "light.attic"}
  ],
  "info": [
    {"label": "Solar", "entity_id": "sensor.solar_power", "unit": "W"},
    {"label": "Außen", "entity_id": "sensor.outdoor_temperature", "unit": "°C"},
    {"label": "Keller", "entity_id": "sensor.cellar_humidity", "unit": "%"}
  ],
  "quickActions": [
    {"label": "Gute Nacht", "domain": "script", "service": "good_night"},
    {"label": "Alles aus", "domain": "light", "service": "turn_off", "data": {"entity_id": "light.living_room"}}
  ]
}`

var transports = []string{config.TransportREST, config.TransportWebSocket}

func setupTest(t *testing.T, opts testutil.Options) *testutil.TestEnv {
	t.Helper()
	if opts.Dashboard == "" {
		opts.Dashboard = dashboardJSON
	}

	env, err := testutil.NewTestEnv(opts)
	require.NoError(t, err)
	t.Cleanup(env.Cleanup)

	env.HA.InitializeStates()
	return env
}

func decode(t *testing.T, resp *testutil.Response) map[string]interface{} {
	t.Helper()
	body, err := resp.JSON()
	require.NoError(t, err)
	return body
}

func newClient(cfg config.HomeAssistant, env *testutil.TestEnv) ha.HAClient {
	if cfg.Transport == config.TransportWebSocket {
		return ha.NewWSClient(cfg, env.Logger, nil)
	}
	return ha.NewClient(cfg, env.Logger, nil)
}

// TestBasicConnection tests health reporting over both transports
func TestBasicConnection(t *testing.T) {
	for _, transport := range transports {
		t.Run(transport, func(t *testing.T) {
			env := setupTest(t, testutil.Options{Transport: transport})

			resp, err := env.Get("/api/health")
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.Status)

			body := decode(t, resp)
			assert.Equal(t, true, body["ok"])
			assert.Equal(t, "nummer12 family", body["title"])
			assert.Equal(t, "2026-03-14T07:30:00Z", body["ts"])
		})
	}
}

// TestBadToken verifies that rejected credentials surface as 401
func TestBadToken(t *testing.T) {
	for _, transport := range transports {
		t.Run(transport, func(t *testing.T) {
			env := setupTest(t, testutil.Options{Transport: transport})
			cfg := env.Settings.HomeAssistant
			cfg.Token = "wrong"

			err := newClient(cfg, env).Ping(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "401")
		})
	}
}

// TestMetricsExposed checks that upstream calls show up on /metrics
func TestMetricsExposed(t *testing.T) {
	env := setupTest(t, testutil.Options{})

	_, err := env.Get("/api/dashboard")
	require.NoError(t, err)

	resp, err := env.Get("/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body), `familydash_upstream_requests_total{operation="get_states",outcome="ok",transport="rest"} 1`)
	assert.Contains(t, string(resp.Body), `familydash_http_requests_total{method="GET",route="/api/dashboard",status="200"} 1`)
}
