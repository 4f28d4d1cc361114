// Package actions executes user commands against Home Assistant: light
// toggles and pre-configured quick actions.
package actions

import (
	"context"
	"fmt"
	"strings"

	"familydash/internal/apperr"
	"familydash/internal/config"
	"familydash/internal/entity"
	"familydash/internal/ha"

	"go.uber.org/zap"
)

const serviceToggle = "toggle"

// Dispatcher validates and forwards actions to Home Assistant
type Dispatcher struct {
	client ha.HAClient
	logger *zap.Logger
}

// NewDispatcher creates a new action dispatcher
func NewDispatcher(client ha.HAClient, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger,
	}
}

// Toggle flips a light. The entity's live state is checked with
// entity.IsLight before anything is sent, so only entities the dashboard
// would show as rooms can be toggled.
func (d *Dispatcher) Toggle(ctx context.Context, entityID string) error {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return apperr.Validation("entity_id required")
	}

	state, err := d.client.GetState(ctx, entityID)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", entityID, err)
	}

	if !entity.IsLight(state) {
		d.logger.Warn("Rejected toggle of non-light entity", zap.String("entity_id", entityID))
		return apperr.Authorization("entity is not a light")
	}

	domain := entity.Domain(entityID)
	if err := d.client.CallService(ctx, domain, serviceToggle, map[string]interface{}{
		"entity_id": entityID,
	}); err != nil {
		return fmt.Errorf("failed to toggle %s: %w", entityID, err)
	}

	d.logger.Info("Toggled entity",
		zap.String("entity_id", entityID),
		zap.String("previous_state", state.State))
	return nil
}

// Run executes the quick action with the given label from dashboard
func (d *Dispatcher) Run(ctx context.Context, dashboard *config.Dashboard, label string) error {
	if label == "" {
		return apperr.Validation("label required")
	}

	action, ok := dashboard.FindAction(label)
	if !ok {
		return apperr.NotFound("action not found")
	}

	data := action.Data
	if data == nil {
		data = map[string]interface{}{}
	}

	if err := d.client.CallService(ctx, action.Domain, action.Service, data); err != nil {
		return fmt.Errorf("quick action %q failed: %w", label, err)
	}

	d.logger.Info("Ran quick action",
		zap.String("label", label),
		zap.String("domain", action.Domain),
		zap.String("service", action.Service))
	return nil
}
