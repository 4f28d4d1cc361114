package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"familydash/internal/api"
	"familydash/internal/chat"
	"familydash/internal/clock"
	"familydash/internal/config"
	"familydash/internal/ha"
	"familydash/internal/metrics"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load environment variables before the log level is known
	envErr := godotenv.Load()

	settings, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(settings.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	if !settings.HomeAssistant.Configured() {
		logger.Warn("HA_BASE_URL and HA_TOKEN are not set; Home Assistant calls will fail")
	}

	logger.Info("Starting family dashboard",
		zap.String("title", settings.Title),
		zap.String("ha_url", settings.HomeAssistant.BaseURL),
		zap.String("transport", settings.HomeAssistant.Transport),
		zap.Duration("upstream_timeout", settings.HomeAssistant.Timeout),
		zap.Bool("chat_configured", settings.Chat.Configured()))

	m := metrics.New()

	var client ha.HAClient
	switch settings.HomeAssistant.Transport {
	case config.TransportWebSocket:
		client = ha.NewWSClient(settings.HomeAssistant, logger, m)
	default:
		client = ha.NewClient(settings.HomeAssistant, logger, m)
	}

	// Probe once so a bad token shows up in the startup log
	if settings.HomeAssistant.Configured() {
		ctx, cancel := context.WithTimeout(context.Background(), settings.HomeAssistant.Timeout)
		if err := client.Ping(ctx); err != nil {
			logger.Warn("Home Assistant not reachable yet", zap.Error(err))
		} else {
			logger.Info("Connected to Home Assistant")
		}
		cancel()
	}

	chatClient := chat.NewClient(settings.Chat, logger, m)
	server := api.NewServer(settings, client, chatClient, clock.NewRealClock(), m, logger)

	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Dashboard running", zap.String("url", fmt.Sprintf("http://%s", settings.Addr())))

	// Wait for shutdown signal
	<-sigChan

	logger.Info("Shutting down gracefully...")
	if err := server.Stop(); err != nil {
		logger.Error("Error stopping HTTP server", zap.Error(err))
	}
}

// newLogger returns a production logger at level, or a development logger
// for "debug"
func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}
