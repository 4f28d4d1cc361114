package ha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"familydash/internal/apperr"
	"familydash/internal/config"
	"familydash/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	transportWebSocket = "websocket"

	// each session carries exactly one command
	commandID = 1
)

// WSClient implements HAClient over the Home Assistant WebSocket API.
// Every call opens its own authenticated session and closes it afterwards,
// so there is no shared connection state between requests.
type WSClient struct {
	url     string
	token   string
	timeout time.Duration
	dialer  *websocket.Dialer
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewWSClient creates a new Home Assistant WebSocket client
func NewWSClient(cfg config.HomeAssistant, logger *zap.Logger, m *metrics.Metrics) *WSClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WSClient{
		url:     WebSocketURL(cfg.BaseURL),
		token:   cfg.Token,
		timeout: timeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		logger:  logger,
		metrics: m,
	}
}

// WebSocketURL derives the websocket endpoint from an http(s) base URL
func WebSocketURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}

	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	if !strings.HasSuffix(u, "/api/websocket") {
		u += "/api/websocket"
	}
	return u
}

// Ping opens and authenticates a session
func (c *WSClient) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveUpstream(transportWebSocket, "ping", err, time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	c.close(conn)
	return nil
}

// GetState retrieves the state of an entity
func (c *WSClient) GetState(ctx context.Context, entityID string) (*State, error) {
	states, err := c.getStates(ctx, "get_state")
	if err != nil {
		return nil, err
	}

	for _, state := range states {
		if state.EntityID == entityID {
			return state, nil
		}
	}

	return nil, apperr.Upstream(http.StatusNotFound, nil, fmt.Errorf("entity %s not found", entityID))
}

// GetAllStates retrieves all entity states
func (c *WSClient) GetAllStates(ctx context.Context) ([]*State, error) {
	return c.getStates(ctx, "get_states")
}

func (c *WSClient) getStates(ctx context.Context, op string) ([]*State, error) {
	result, err := c.command(ctx, op, &GetStatesRequest{
		ID:   commandID,
		Type: "get_states",
	})
	if err != nil {
		return nil, err
	}

	var states []*State
	if err := json.Unmarshal(result, &states); err != nil {
		return nil, apperr.Upstream(0, ParsePayload(result), fmt.Errorf("failed to unmarshal states: %w", err))
	}

	c.logger.Debug("Retrieved entity states", zap.Int("count", len(states)))
	return states, nil
}

// CallService calls a Home Assistant service
func (c *WSClient) CallService(ctx context.Context, domain, service string, data map[string]interface{}) error {
	if data == nil {
		data = map[string]interface{}{}
	}

	_, err := c.command(ctx, "call_service", &CallServiceRequest{
		ID:          commandID,
		Type:        "call_service",
		Domain:      domain,
		Service:     service,
		ServiceData: data,
	})
	if err != nil {
		return err
	}

	c.logger.Debug("Called Home Assistant service",
		zap.String("domain", domain),
		zap.String("service", service))
	return nil
}

// command runs one request/response exchange on a fresh session
func (c *WSClient) command(ctx context.Context, op string, req interface{}) (result json.RawMessage, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveUpstream(transportWebSocket, op, err, time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.close(conn)

	if err := conn.WriteJSON(req); err != nil {
		return nil, apperr.Upstream(0, nil, fmt.Errorf("failed to send message: %w", err))
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, apperr.Upstream(0, nil, fmt.Errorf("failed to read response: %w", err))
		}

		// Skip anything that is not the answer to our command
		if msg.Type != "result" || msg.ID != commandID {
			continue
		}

		if msg.Success != nil && !*msg.Success {
			return nil, resultError(msg.Error)
		}
		return msg.Result, nil
	}
}

// connect dials and authenticates. The connection is closed when ctx ends,
// which unblocks any pending read or write.
func (c *WSClient) connect(ctx context.Context) (*websocket.Conn, error) {
	if c.url == "" || c.token == "" {
		return nil, apperr.Configuration("HA_BASE_URL or HA_TOKEN missing")
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, apperr.Upstream(status, nil, fmt.Errorf("failed to connect to WebSocket: %w", err))
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}
	context.AfterFunc(ctx, func() { conn.Close() })

	// Receive auth_required message
	var authRequired Message
	if err := conn.ReadJSON(&authRequired); err != nil {
		conn.Close()
		return nil, apperr.Upstream(0, nil, fmt.Errorf("failed to read auth_required: %w", err))
	}
	if authRequired.Type != "auth_required" {
		conn.Close()
		return nil, apperr.Upstream(0, nil, fmt.Errorf("expected auth_required, got %s", authRequired.Type))
	}

	if err := conn.WriteJSON(AuthMessage{Type: "auth", AccessToken: c.token}); err != nil {
		conn.Close()
		return nil, apperr.Upstream(0, nil, fmt.Errorf("failed to send auth: %w", err))
	}

	var authResponse Message
	if err := conn.ReadJSON(&authResponse); err != nil {
		conn.Close()
		return nil, apperr.Upstream(0, nil, fmt.Errorf("failed to read auth response: %w", err))
	}

	switch authResponse.Type {
	case "auth_ok":
		return conn, nil
	case "auth_invalid":
		conn.Close()
		return nil, apperr.Upstream(http.StatusUnauthorized, authResponse.Text, errors.New("authentication failed: invalid token"))
	default:
		conn.Close()
		return nil, apperr.Upstream(0, nil, fmt.Errorf("expected auth_ok, got %s", authResponse.Type))
	}
}

func (c *WSClient) close(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.Close()
}

// resultError converts a failed result into an upstream error
func resultError(e *Error) error {
	if e == nil {
		return apperr.Upstream(0, nil, errors.New("request failed"))
	}

	status := 0
	switch e.Code {
	case "not_found":
		status = http.StatusNotFound
	case "unauthorized":
		status = http.StatusUnauthorized
	case "invalid_format":
		status = http.StatusBadRequest
	}

	payload := map[string]interface{}{"code": e.Code, "message": e.Message}
	return apperr.Upstream(status, payload, fmt.Errorf("HA error: %s - %s", e.Code, e.Message))
}
