// Package chat relays messages to the nummer12 chat backend and reports
// whether it is reachable.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"familydash/internal/apperr"
	"familydash/internal/config"
	"familydash/internal/metrics"

	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// Status is the chat backend health as reported to the browser
type Status struct {
	Connected bool   `json:"connected"`
	Endpoint  string `json:"endpoint"`
}

// Client talks to the chat backend over HTTP
type Client struct {
	cfg        config.Chat
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a new chat backend client
func NewClient(cfg config.Chat, logger *zap.Logger, m *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "x-api-key"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		metrics:    m,
	}
}

// Health probes the backend. It never fails: any problem is reported as
// not connected. Responses below 500 count as connected, since a backend
// that answers 404 or 405 on its chat URL is still up.
func (c *Client) Health(ctx context.Context) Status {
	if !c.cfg.Configured() {
		return Status{}
	}

	endpoint := c.cfg.ProbeURL()
	status := Status{Endpoint: endpoint}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Warn("Invalid chat health endpoint", zap.String("endpoint", endpoint), zap.Error(err))
		return status
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Chat backend unreachable", zap.String("endpoint", endpoint), zap.Error(err))
		return status
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	status.Connected = resp.StatusCode < http.StatusInternalServerError
	return status
}

// Send posts message to the backend and returns its reply
func (c *Client) Send(ctx context.Context, message string) (reply string, err error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", apperr.Validation("message required")
	}
	if !c.cfg.Configured() {
		return "", apperr.Backend(0, "chat backend not configured", nil)
	}

	defer func() { c.metrics.ObserveChat(err) }()

	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", apperr.Backend(0, "invalid chat backend url", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")
	c.authorize(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Chat backend unreachable", zap.Error(err))
		return "", apperr.Backend(0, "chat backend unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", apperr.Backend(resp.StatusCode, "failed to read chat response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Chat backend returned error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(data, 512)))
		return "", apperr.Backend(resp.StatusCode, fmt.Sprintf("chat backend failed (%d)", resp.StatusCode), nil)
	}

	reply, ok := ExtractReply(data)
	if !ok {
		return "", apperr.Backend(resp.StatusCode, "no reply in chat response", nil)
	}

	c.logger.Debug("Chat reply received",
		zap.Duration("duration", time.Since(start)),
		zap.Int("reply_length", len(reply)))
	return reply, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
