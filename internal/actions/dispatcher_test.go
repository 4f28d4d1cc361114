package actions

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"familydash/internal/apperr"
	"familydash/internal/config"
	"familydash/internal/ha"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDispatcher(t *testing.T) (*Dispatcher, *ha.MockClient) {
	t.Helper()
	client := ha.NewMockClient()
	logger, _ := zap.NewDevelopment()
	return NewDispatcher(client, logger), client
}

func TestToggle(t *testing.T) {
	t.Run("light domain", func(t *testing.T) {
		d, client := newDispatcher(t)
		client.SetState("light.kitchen", "off", map[string]interface{}{"friendly_name": "Küche"})

		require.NoError(t, d.Toggle(context.Background(), "light.kitchen"))

		calls := client.GetServiceCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "light", calls[0].Domain)
		assert.Equal(t, "toggle", calls[0].Service)
		assert.Equal(t, map[string]interface{}{"entity_id": "light.kitchen"}, calls[0].Data)

		state, err := client.GetState(context.Background(), "light.kitchen")
		require.NoError(t, err)
		assert.Equal(t, "on", state.State)
	})

	t.Run("switch named as light uses switch domain", func(t *testing.T) {
		d, client := newDispatcher(t)
		client.SetState("switch.sonoff_3", "on", map[string]interface{}{"friendly_name": "Flur Licht"})

		require.NoError(t, d.Toggle(context.Background(), "switch.sonoff_3"))

		calls := client.GetServiceCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "switch", calls[0].Domain)
	})

	t.Run("non-light is forbidden", func(t *testing.T) {
		d, client := newDispatcher(t)
		client.SetState("switch.pool_pump", "on", map[string]interface{}{"friendly_name": "Pool Pumpe"})

		err := d.Toggle(context.Background(), "switch.pool_pump")
		require.Error(t, err)
		assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
		assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))
		assert.Empty(t, client.GetServiceCalls())
	})

	t.Run("empty id", func(t *testing.T) {
		d, client := newDispatcher(t)

		for _, id := range []string{"", "   "} {
			err := d.Toggle(context.Background(), id)
			assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
		}
		assert.Empty(t, client.StateLookups())
		assert.Empty(t, client.GetServiceCalls())
	})

	t.Run("unknown entity surfaces upstream status", func(t *testing.T) {
		d, client := newDispatcher(t)

		err := d.Toggle(context.Background(), "light.attic")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
		assert.Empty(t, client.GetServiceCalls())
	})

	t.Run("service failure surfaces upstream status", func(t *testing.T) {
		d, client := newDispatcher(t)
		client.SetState("light.kitchen", "off", nil)
		client.SetServiceError(apperr.Upstream(http.StatusServiceUnavailable, "busy", errors.New("unavailable")))

		err := d.Toggle(context.Background(), "light.kitchen")
		assert.Equal(t, http.StatusServiceUnavailable, apperr.HTTPStatus(err))
	})

	t.Run("transport failure is a server error", func(t *testing.T) {
		d, client := newDispatcher(t)
		client.SetState("light.kitchen", "off", nil)
		client.SetServiceError(apperr.Upstream(0, nil, errors.New("connection refused")))

		err := d.Toggle(context.Background(), "light.kitchen")
		assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))
	})
}

func quickActions() *config.Dashboard {
	return &config.Dashboard{
		QuickActions: []config.QuickAction{
			{Label: "Gute Nacht", Domain: "script", Service: "good_night"},
			{
				Label:   "Alles aus",
				Domain:  "light",
				Service: "turn_off",
				Data:    map[string]interface{}{"entity_id": "all"},
			},
		},
	}
}

func TestRun(t *testing.T) {
	t.Run("forwards configured service and data", func(t *testing.T) {
		d, client := newDispatcher(t)

		require.NoError(t, d.Run(context.Background(), quickActions(), "Alles aus"))

		calls := client.GetServiceCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "light", calls[0].Domain)
		assert.Equal(t, "turn_off", calls[0].Service)
		assert.Equal(t, map[string]interface{}{"entity_id": "all"}, calls[0].Data)
	})

	t.Run("missing data sends empty object", func(t *testing.T) {
		d, client := newDispatcher(t)

		require.NoError(t, d.Run(context.Background(), quickActions(), "Gute Nacht"))

		calls := client.GetServiceCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, map[string]interface{}{}, calls[0].Data)
	})

	t.Run("unknown label", func(t *testing.T) {
		d, client := newDispatcher(t)

		err := d.Run(context.Background(), quickActions(), "gute nacht")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
		assert.Empty(t, client.GetServiceCalls())
	})

	t.Run("empty label", func(t *testing.T) {
		d, client := newDispatcher(t)

		err := d.Run(context.Background(), quickActions(), "")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Empty(t, client.GetServiceCalls())
	})

	t.Run("whitespace label is looked up, not rejected", func(t *testing.T) {
		d, client := newDispatcher(t)

		err := d.Run(context.Background(), quickActions(), "  ")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		assert.Empty(t, client.GetServiceCalls())
	})

	t.Run("empty dashboard", func(t *testing.T) {
		d, _ := newDispatcher(t)

		err := d.Run(context.Background(), config.Empty(), "Gute Nacht")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("upstream failure", func(t *testing.T) {
		d, client := newDispatcher(t)
		client.SetServiceError(apperr.Upstream(http.StatusBadRequest, nil, errors.New("invalid")))

		err := d.Run(context.Background(), quickActions(), "Gute Nacht")
		assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
	})
}
