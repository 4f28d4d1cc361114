package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"familydash/internal/api"
	"familydash/internal/chat"
	"familydash/internal/clock"
	"familydash/internal/config"
	"familydash/internal/ha"
	"familydash/internal/metrics"

	"go.uber.org/zap"
)

// DefaultToken is the access token the mock server accepts
const DefaultToken = "test_token"

// Options tune a TestEnv. The zero value gives a REST client, an empty
// dashboard file and no chat backend.
type Options struct {
	// Transport is config.TransportREST or config.TransportWebSocket
	Transport string
	// Dashboard is written to the dashboard file; empty means no file
	Dashboard string
	// DashboardExt selects the file format, ".json" by default
	DashboardExt string
	// ChatHandler, when set, is served as the chat backend
	ChatHandler http.Handler
	// FetchConcurrency bounds the per-entity lookups
	FetchConcurrency int
	// Timeout bounds upstream calls; 2s by default
	Timeout time.Duration
}

// TestEnv provides a complete test environment: a mock Home Assistant, the
// real client and API server wired as in production, and an HTTP server in
// front of them.
type TestEnv struct {
	HA       *MockHAServer
	Settings *config.Settings
	Client   ha.HAClient
	Metrics  *metrics.Metrics
	Clock    *clock.MockClock
	Logger   *zap.Logger

	api  *httptest.Server
	chat *httptest.Server
	dir  string
}

// Response is a decoded API response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON decodes the body into a generic map
func (r *Response) JSON() (map[string]interface{}, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", r.Body, err)
	}
	return body, nil
}

// NewTestEnv creates a fully configured test environment.
//
// Example usage:
//
//	env, err := testutil.NewTestEnv(testutil.Options{Dashboard: dashboardJSON})
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer env.Cleanup()
//
//	env.HA.InitializeStates()
//	resp, err := env.Get("/api/dashboard")
func NewTestEnv(opts Options) (*TestEnv, error) {
	logger, _ := zap.NewDevelopment()

	if opts.Transport == "" {
		opts.Transport = config.TransportREST
	}
	if opts.DashboardExt == "" {
		opts.DashboardExt = ".json"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}

	dir, err := os.MkdirTemp("", "familydash-test-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	env := &TestEnv{
		Metrics: metrics.New(),
		Clock:   clock.NewMockClock(time.Date(2026, 3, 14, 7, 30, 0, 0, time.UTC)),
		Logger:  logger,
		dir:     dir,
	}

	dashboardFile := filepath.Join(dir, "dashboard"+opts.DashboardExt)
	if opts.Dashboard != "" {
		if err := os.WriteFile(dashboardFile, []byte(opts.Dashboard), 0o644); err != nil {
			env.Cleanup()
			return nil, fmt.Errorf("failed to write dashboard file: %w", err)
		}
	}

	// Start mock HA server
	env.HA = NewMockHAServer(DefaultToken)
	if err := env.HA.Start(); err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to start mock server: %w", err)
	}

	chatCfg := config.Chat{APIKeyHeader: "x-api-key", Timeout: opts.Timeout}
	if opts.ChatHandler != nil {
		env.chat = httptest.NewServer(opts.ChatHandler)
		chatCfg.URL = env.chat.URL + "/chat"
		chatCfg.HealthURL = env.chat.URL + "/health"
	}

	env.Settings = &config.Settings{
		Host:             "127.0.0.1",
		Port:             8080,
		Title:            "nummer12 family",
		DashboardFile:    dashboardFile,
		DashboardLocale:  "de",
		FetchConcurrency: opts.FetchConcurrency,
		LogLevel:         "debug",
		HomeAssistant: config.HomeAssistant{
			BaseURL:   env.HA.URL(),
			Token:     DefaultToken,
			Transport: opts.Transport,
			Timeout:   opts.Timeout,
		},
		Chat: chatCfg,
	}

	if opts.Transport == config.TransportWebSocket {
		env.Client = ha.NewWSClient(env.Settings.HomeAssistant, logger, env.Metrics)
	} else {
		env.Client = ha.NewClient(env.Settings.HomeAssistant, logger, env.Metrics)
	}

	chatClient := chat.NewClient(env.Settings.Chat, logger, env.Metrics)
	server := api.NewServer(env.Settings, env.Client, chatClient, env.Clock, env.Metrics, logger)
	env.api = httptest.NewServer(server.Handler())

	return env, nil
}

// URL returns the base URL of the API server
func (e *TestEnv) URL() string {
	return e.api.URL
}

// DashboardFile returns the path of the dashboard file
func (e *TestEnv) DashboardFile() string {
	return e.Settings.DashboardFile
}

// WriteDashboard replaces the dashboard file contents
func (e *TestEnv) WriteDashboard(contents string) error {
	return os.WriteFile(e.Settings.DashboardFile, []byte(contents), 0o644)
}

// Get issues a GET against the API server
func (e *TestEnv) Get(path string) (*Response, error) {
	return e.Do(http.MethodGet, path, nil)
}

// Post issues a POST with a JSON body against the API server
func (e *TestEnv) Post(path string, body interface{}) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}
	return e.Do(http.MethodPost, path, data)
}

// Do issues a request against the API server
func (e *TestEnv) Do(method, path string, body []byte) (*Response, error) {
	req, err := http.NewRequest(method, e.api.URL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.api.Client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// Cleanup stops all components in the correct order.
// Always call this in a defer after creating the TestEnv.
func (e *TestEnv) Cleanup() {
	if e.api != nil {
		e.api.Close()
	}
	if e.chat != nil {
		e.chat.Close()
	}
	if e.HA != nil {
		e.HA.Stop()
	}
	if e.dir != "" {
		os.RemoveAll(e.dir)
	}
}

// GetServiceCalls returns all service calls made to the mock server.
func (e *TestEnv) GetServiceCalls() []ServiceCall {
	return e.HA.GetServiceCalls()
}

// ClearServiceCalls clears the recorded service calls.
func (e *TestEnv) ClearServiceCalls() {
	e.HA.ClearServiceCalls()
}
