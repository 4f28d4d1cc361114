package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"familydash/internal/actions"
	"familydash/internal/chat"
	"familydash/internal/clock"
	"familydash/internal/config"
	"familydash/internal/dashboard"
	"familydash/internal/ha"
	"familydash/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// maxBodyBytes bounds every request body
const maxBodyBytes = 200 << 10

// Server provides the HTTP API consumed by the dashboard front end
type Server struct {
	settings   *config.Settings
	client     ha.HAClient
	loader     *config.Loader
	aggregator *dashboard.Aggregator
	dispatcher *actions.Dispatcher
	chat       *chat.Client
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *zap.Logger
	router     chi.Router
	server     *http.Server
}

// NewServer creates a new API server
func NewServer(settings *config.Settings, client ha.HAClient, chatClient *chat.Client, clk clock.Clock, m *metrics.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		settings:   settings,
		client:     client,
		loader:     config.NewLoader(settings.DashboardFile, logger),
		aggregator: dashboard.NewAggregator(client, settings, clk, logger, m),
		dispatcher: actions.NewDispatcher(client, logger),
		chat:       chatClient,
		clock:      clk,
		metrics:    m,
		logger:     logger,
	}

	s.router = s.routes()

	// A dashboard build waits on the bulk fetch and then on the per-entity
	// fill, each bounded by the upstream timeout
	writeTimeout := 2*settings.HomeAssistant.Timeout + 5*time.Second

	s.server = &http.Server{
		Addr:         settings.Addr(),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/", s.handleSitemap)
		r.Get("/health", s.handleHealth)
		r.Get("/dashboard", s.handleDashboard)
		r.Post("/toggle", s.handleToggle)
		r.Post("/action", s.handleAction)
		r.Get("/nummer12/health", s.handleChatHealth)
		r.Post("/nummer12/chat", s.handleChat)
	})

	r.Handle("/metrics", s.metrics.Handler())

	if s.settings.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.settings.StaticDir)))
	} else {
		r.Get("/", s.handleSitemap)
	}

	return r
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server",
		zap.String("addr", s.server.Addr),
		zap.String("transport", s.settings.HomeAssistant.Transport),
		zap.String("dashboard_file", s.loader.Path()))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
