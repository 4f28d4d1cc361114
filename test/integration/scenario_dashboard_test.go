package integration

import (
	"net/http"
	"testing"
	"time"

	"familydash/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rooms(t *testing.T, body map[string]interface{}) []string {
	t.Helper()
	cfg, ok := body["config"].(map[string]interface{})
	require.True(t, ok)
	list, ok := cfg["rooms"].([]interface{})
	require.True(t, ok)

	labels := make([]string, len(list))
	for i, room := range list {
		labels[i] = room.(map[string]interface{})["label"].(string)
	}
	return labels
}

func states(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	s, ok := body["states"].(map[string]interface{})
	require.True(t, ok)
	return s
}

// TestScenario_DashboardDerivesRooms validates that every light known to
// Home Assistant becomes a room, sorted for a German reader
func TestScenario_DashboardDerivesRooms(t *testing.T) {
	for _, transport := range transports {
		t.Run(transport, func(t *testing.T) {
			env := setupTest(t, testutil.Options{Transport: transport})

			t.Log("GIVEN: Home Assistant knows three lights and one switch named as a light")
			t.Log("WHEN: The dashboard is requested")
			resp, err := env.Get("/api/dashboard")
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.Status)
			body := decode(t, resp)

			t.Log("THEN: Rooms come from the lights, not from the configured list")
			assert.Equal(t, []string{"Bad", "Garten", "Küche", "Wohnzimmer"}, rooms(t, body))

			t.Log("AND: All fetched states are included")
			s := states(t, body)
			assert.Equal(t, "512", s["sensor.solar_power"].(map[string]interface{})["state"])
			assert.Contains(t, s, "switch.pool_pump")

			t.Log("AND: A configured info entity unknown to Home Assistant is recorded as null")
			require.Contains(t, s, "sensor.cellar_humidity")
			assert.Nil(t, s["sensor.cellar_humidity"])
		})
	}
}

// TestScenario_DashboardFallsBackWhenBulkFails validates graceful
// degradation when the all-states endpoint is broken
func TestScenario_DashboardFallsBackWhenBulkFails(t *testing.T) {
	env := setupTest(t, testutil.Options{})

	t.Log("GIVEN: The all-states endpoint returns 500")
	env.HA.FailBulk(http.StatusInternalServerError)

	t.Log("WHEN: The dashboard is requested")
	resp, err := env.Get("/api/dashboard")
	require.NoError(t, err)

	t.Log("THEN: The request still succeeds with the configured rooms")
	require.Equal(t, http.StatusOK, resp.Status)
	body := decode(t, resp)
	assert.Equal(t, []string{"Küche", "Dachboden"}, rooms(t, body))

	t.Log("AND: Each referenced entity was looked up individually")
	s := states(t, body)
	assert.Len(t, s, 5)
	assert.Equal(t, "off", s["light.kitchen"].(map[string]interface{})["state"])
	assert.Equal(t, "14.5", s["sensor.outdoor_temperature"].(map[string]interface{})["state"])
	assert.Nil(t, s["light.attic"])
	assert.Nil(t, s["sensor.cellar_humidity"])
	assert.Equal(t, 5, env.HA.CountRequests("GET /api/states/"))
}

// TestScenario_DashboardWithHADown validates that the dashboard renders
// placeholders when Home Assistant is unreachable
func TestScenario_DashboardWithHADown(t *testing.T) {
	env := setupTest(t, testutil.Options{Timeout: 500 * time.Millisecond})

	t.Log("GIVEN: Home Assistant is gone")
	env.HA.Stop()

	t.Log("WHEN: The dashboard is requested")
	resp, err := env.Get("/api/dashboard")
	require.NoError(t, err)

	t.Log("THEN: Every referenced entity is present with a null state")
	require.Equal(t, http.StatusOK, resp.Status)
	body := decode(t, resp)
	s := states(t, body)
	require.Len(t, s, 5)
	for id, state := range s {
		assert.Nil(t, state, id)
	}

	t.Log("AND: Health reports the failure")
	resp, err = env.Get("/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Equal(t, false, decode(t, resp)["ok"])
}

// TestScenario_PartialEntityFailure validates that one failing lookup does
// not affect the others
func TestScenario_PartialEntityFailure(t *testing.T) {
	env := setupTest(t, testutil.Options{FetchConcurrency: 2})

	t.Log("GIVEN: Bulk fetch fails and one sensor lookup returns 503")
	env.HA.FailBulk(http.StatusBadGateway)
	env.HA.FailEntity("sensor.solar_power", http.StatusServiceUnavailable)

	t.Log("WHEN: The dashboard is requested")
	resp, err := env.Get("/api/dashboard")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	t.Log("THEN: Only the failing sensor is null")
	s := states(t, decode(t, resp))
	assert.Nil(t, s["sensor.solar_power"])
	assert.NotNil(t, s["light.kitchen"])
	assert.NotNil(t, s["sensor.outdoor_temperature"])
}

// TestScenario_DashboardFileReloaded validates that edits to the dashboard
// file apply without a restart
func TestScenario_DashboardFileReloaded(t *testing.T) {
	env := setupTest(t, testutil.Options{})
	env.HA.FailBulk(http.StatusInternalServerError)

	resp, err := env.Get("/api/dashboard")
	require.NoError(t, err)
	assert.Equal(t, []string{"Küche", "Dachboden"}, rooms(t, decode(t, resp)))

	t.Log("WHEN: The dashboard file is rewritten")
	require.NoError(t, env.WriteDashboard(`{"rooms": [{"label": "Bad", "entity_id": "light.bath"}], "info": [], "quickActions": []}`))

	resp, err = env.Get("/api/dashboard")
	require.NoError(t, err)
	body := decode(t, resp)
	assert.Equal(t, []string{"Bad"}, rooms(t, body))
	assert.Len(t, states(t, body), 1)

	t.Log("WHEN: The dashboard file becomes invalid")
	require.NoError(t, env.WriteDashboard(`{"rooms": [`))

	resp, err = env.Get("/api/dashboard")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	body = decode(t, resp)
	assert.Empty(t, rooms(t, body))
	assert.Empty(t, states(t, body))
}

// TestScenario_YAMLDashboard validates YAML dashboard files
func TestScenario_YAMLDashboard(t *testing.T) {
	env := setupTest(t, testutil.Options{
		DashboardExt: ".yaml",
		Dashboard: `rooms:
  - label: Küche
    entity_id: light.kitchen
info:
  - label: Solar
    entity_id: sensor.solar_power
    unit: W
quickActions:
  - label: Gute Nacht
    domain: script
    service: good_night
`,
	})
	env.HA.FailBulk(http.StatusInternalServerError)

	resp, err := env.Get("/api/dashboard")
	require.NoError(t, err)
	body := decode(t, resp)
	assert.Equal(t, []string{"Küche"}, rooms(t, body))
	assert.Len(t, states(t, body), 2)

	resp, err = env.Post("/api/action", map[string]string{"label": "Gute Nacht"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}
