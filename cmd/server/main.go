package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/route250/MeetingMinutesSummarizer/internal/bot"
	"github.com/route250/MeetingMinutesSummarizer/internal/config"
	"github.com/route250/MeetingMinutesSummarizer/internal/llm"
	"github.com/route250/MeetingMinutesSummarizer/internal/metrics"
	"github.com/route250/MeetingMinutesSummarizer/internal/server"
	"github.com/route250/MeetingMinutesSummarizer/internal/session"
	"github.com/route250/MeetingMinutesSummarizer/internal/tts"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "meeting-minutes-summarizer"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration; fall back to built-in defaults when the
	// default path does not exist and no explicit path was given.
	var cfg *config.Config
	if _, err := os.Stat(*configPath); os.IsNotExist(err) && *configPath == defaultConfigPath {
		cfg = config.Default()
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Default configuration invalid: %v\n", err)
			os.Exit(1)
		}
	} else {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("address", cfg.Server.Address),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("worker_command", cfg.Worker.Command),
		slog.String("llm_model", cfg.LLM.Model),
		slog.Bool("tts_enabled", cfg.TTS.Enabled),
		slog.Int("session_idle_timeout", cfg.Sessions.IdleTimeout),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize LLM client. Without an API key the bot modes that need
	// completions are unavailable and sessions stay transcription-only.
	var completer bot.Completer
	if cfg.LLM.APIKey != "" {
		llmClient, err := llm.NewClient(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.GetTimeoutDuration(),
		})
		if err != nil {
			logger.Error("Failed to create LLM client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		completer = llmClient
		logger.Info("LLM client initialized", slog.String("model", cfg.LLM.Model))
	} else {
		completer = unavailableCompleter{}
		logger.Warn("No LLM API key configured, bot modes are unavailable")
	}

	// Initialize speech synthesis (optional)
	var synthesizer bot.Synthesizer
	if cfg.TTS.Enabled {
		synthesizer = tts.NewEngine(tts.Config{
			Hosts:   cfg.TTS.Hosts,
			Port:    cfg.TTS.Port,
			Speaker: cfg.TTS.Speaker,
			Speed:   cfg.TTS.Speed,
			Pitch:   cfg.TTS.Pitch,
			Logger:  logger,
		})
		logger.Info("TTS engine initialized",
			slog.Int("speaker", cfg.TTS.Speaker),
			slog.String("speaker_name", tts.SpeakerName(cfg.TTS.Speaker)),
		)
	}

	// Initialize session manager
	sessionMgr, err := session.NewManager(logger, cfg.Sessions.GetIdleTimeoutDuration(), session.ManagerConfig{
		WorkerCommand: workerCommand(cfg),
		Completer:     completer,
		Synthesizer:   synthesizer,
		Metrics:       appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session manager initialized",
		slog.Duration("idle_timeout", cfg.Sessions.GetIdleTimeoutDuration()),
	)

	// Initialize HTTP server (WebSocket transport + monitoring API)
	httpServer := server.NewHTTPServer(cfg.Server, logger, cfg, sessionMgr, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new connections)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop session manager (tear down sessions and worker processes)
	sessionMgr.Stop()

	logger.Info("Service stopped")
}

// workerCommand builds the transcription worker command line from the
// configuration.
func workerCommand(cfg *config.Config) []string {
	cmd := []string{
		cfg.Worker.Command,
		"-endpoint", cfg.Transcription.Endpoint,
		"-timeout", cfg.Transcription.GetTimeoutDuration().String(),
		"-language", cfg.Worker.Language,
		"-log-level", cfg.Logging.Level,
	}
	if cfg.Transcription.APIKey != "" {
		cmd = append(cmd, "-api-key", cfg.Transcription.APIKey)
	}
	return cmd
}

// unavailableCompleter rejects completion calls when no LLM is
// configured.
type unavailableCompleter struct{}

func (unavailableCompleter) Complete(ctx context.Context, system string, messages []llm.Message) (string, error) {
	return "", fmt.Errorf("no LLM configured")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
