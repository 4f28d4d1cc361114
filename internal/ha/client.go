package ha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"familydash/internal/apperr"
	"familydash/internal/config"
	"familydash/internal/metrics"

	"go.uber.org/zap"
)

const (
	transportREST = "rest"

	// Large installs return several MiB from /api/states
	defaultMaxResponseBytes = 64 * 1024 * 1024
)

// Client implements HAClient over the Home Assistant REST API
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	maxBody    int64
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a new Home Assistant REST client. Missing credentials
// are reported by each call, not here.
func NewClient(cfg config.HomeAssistant, logger *zap.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		timeout: timeout,
		maxBody: defaultMaxResponseBytes,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: m,
	}
}

// Ping checks that the API answers on /api/
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/api/", nil, nil)
}

// GetState retrieves the state of an entity
func (c *Client) GetState(ctx context.Context, entityID string) (*State, error) {
	var state State
	if err := c.do(ctx, "get_state", http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil, &state); err != nil {
		return nil, err
	}

	c.logger.Debug("Retrieved entity state",
		zap.String("entity_id", entityID),
		zap.String("state", state.State))

	return &state, nil
}

// GetAllStates retrieves all entity states
func (c *Client) GetAllStates(ctx context.Context) ([]*State, error) {
	var states []*State
	if err := c.do(ctx, "get_states", http.MethodGet, "/api/states", nil, &states); err != nil {
		return nil, err
	}

	c.logger.Debug("Retrieved entity states", zap.Int("count", len(states)))
	return states, nil
}

// CallService calls a Home Assistant service. A nil data map is sent as {}.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]interface{}) error {
	if data == nil {
		data = map[string]interface{}{}
	}

	path := fmt.Sprintf("/api/services/%s/%s", url.PathEscape(domain), url.PathEscape(service))
	if err := c.do(ctx, "call_service", http.MethodPost, path, data, nil); err != nil {
		return err
	}

	c.logger.Debug("Called Home Assistant service",
		zap.String("domain", domain),
		zap.String("service", service))

	return nil
}

// do performs one request. Non-2xx statuses and undecodable bodies become
// apperr.KindUpstream errors carrying the parsed-or-raw payload.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveUpstream(transportREST, op, err, time.Since(start))
		if err != nil {
			c.logger.Debug("Home Assistant request failed",
				zap.String("method", method),
				zap.String("path", path),
				zap.Error(err))
		}
	}()

	if c.baseURL == "" || c.token == "" {
		return apperr.Configuration("HA_BASE_URL or HA_TOKEN missing")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal request: %w", marshalErr)
		}
		reader = bytes.NewReader(encoded)
	}

	req, reqErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if reqErr != nil {
		return apperr.Upstream(0, nil, fmt.Errorf("failed to create request: %w", reqErr))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return apperr.Upstream(0, nil, fmt.Errorf("%s %s: %w", method, path, doErr))
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if readErr != nil {
		return apperr.Upstream(resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", readErr))
	}
	if int64(len(data)) > c.maxBody {
		return apperr.Upstream(0, nil, fmt.Errorf("response from %s exceeds %d bytes", path, c.maxBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Upstream(resp.StatusCode, ParsePayload(data),
			fmt.Errorf("%s %s returned %d", method, path, resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if jsonErr := json.Unmarshal(data, out); jsonErr != nil {
		return apperr.Upstream(0, ParsePayload(data), fmt.Errorf("malformed response from %s: %w", path, jsonErr))
	}
	return nil
}

// ParsePayload decodes body as JSON, falling back to the raw text. An empty
// body yields nil.
func ParsePayload(body []byte) interface{} {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}
