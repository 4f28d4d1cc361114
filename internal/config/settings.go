package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport names for the Home Assistant connection
const (
	TransportREST      = "rest"
	TransportWebSocket = "websocket"
)

// HomeAssistant holds the upstream credentials and call policy
type HomeAssistant struct {
	BaseURL   string
	Token     string
	Transport string
	Timeout   time.Duration
}

// Configured reports whether both credentials are present
func (h HomeAssistant) Configured() bool {
	return h.BaseURL != "" && h.Token != ""
}

// Chat holds the chat backend endpoint and credentials
type Chat struct {
	URL          string
	HealthURL    string
	Token        string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
}

// Configured reports whether a chat endpoint is set
func (c Chat) Configured() bool {
	return c.URL != ""
}

// ProbeURL returns the endpoint used for health checks
func (c Chat) ProbeURL() string {
	if c.HealthURL != "" {
		return c.HealthURL
	}
	return c.URL
}

// Settings is the process configuration, built once at startup and passed
// to every component constructor.
type Settings struct {
	Host             string
	Port             int
	Title            string
	DashboardFile    string
	DashboardLocale  string
	StaticDir        string
	FetchConcurrency int
	LogLevel         string
	HomeAssistant    HomeAssistant
	Chat             Chat
}

// Addr returns the listen address
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FromEnv builds Settings from the process environment. Missing Home
// Assistant credentials are not an error here: calls fail individually.
func FromEnv() (*Settings, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (*Settings, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	port, err := strconv.Atoi(get("PORT", "8080"))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT %q", get("PORT", ""))
	}

	timeout, err := time.ParseDuration(get("UPSTREAM_TIMEOUT", "10s"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT %q", get("UPSTREAM_TIMEOUT", ""))
	}

	concurrency, err := strconv.Atoi(get("FETCH_CONCURRENCY", "0"))
	if err != nil || concurrency < 0 {
		return nil, fmt.Errorf("invalid FETCH_CONCURRENCY %q", get("FETCH_CONCURRENCY", ""))
	}

	transport := strings.ToLower(get("HA_TRANSPORT", TransportREST))
	if transport != TransportREST && transport != TransportWebSocket {
		return nil, fmt.Errorf("invalid HA_TRANSPORT %q (want %s or %s)", transport, TransportREST, TransportWebSocket)
	}

	return &Settings{
		Host:             get("HOST", "0.0.0.0"),
		Port:             port,
		Title:            get("TITLE", "nummer12 family"),
		DashboardFile:    get("DASHBOARD_FILE", "config/dashboard.json"),
		DashboardLocale:  get("DASHBOARD_LOCALE", "de"),
		StaticDir:        get("STATIC_DIR", ""),
		FetchConcurrency: concurrency,
		LogLevel:         strings.ToLower(get("LOG_LEVEL", "info")),
		HomeAssistant: HomeAssistant{
			BaseURL:   strings.TrimRight(get("HA_BASE_URL", ""), "/"),
			Token:     get("HA_TOKEN", ""),
			Transport: transport,
			Timeout:   timeout,
		},
		Chat: Chat{
			URL:          get("NUMMER12_CHAT_URL", ""),
			HealthURL:    get("NUMMER12_HEALTH_URL", ""),
			Token:        get("NUMMER12_TOKEN", ""),
			APIKey:       get("NUMMER12_API_KEY", ""),
			APIKeyHeader: get("NUMMER12_API_KEY_HEADER", "x-api-key"),
			Timeout:      timeout,
		},
	}, nil
}
