package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/route250/MeetingMinutesSummarizer/internal/asr"
	"github.com/route250/MeetingMinutesSummarizer/internal/worker"
)

// Transcription worker process. Spawned by the session host with its
// stdin/stdout wired as the frame pipes; all logging goes to stderr so
// the result pipe stays clean.
func main() {
	endpoint := flag.String("endpoint", "", "Recognition engine HTTP endpoint")
	apiKey := flag.String("api-key", "", "Recognition engine API key")
	language := flag.String("language", "off", "Initial language hint")
	timeout := flag.Duration("timeout", 30*time.Second, "Recognition request timeout")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := initLogger(*logLevel)

	if *endpoint == "" {
		fmt.Fprintln(os.Stderr, "endpoint is required")
		os.Exit(1)
	}

	engine, err := asr.NewClient(asr.Config{
		Endpoint: *endpoint,
		APIKey:   *apiKey,
		Timeout:  *timeout,
	})
	if err != nil {
		logger.Error("Failed to create engine client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer engine.Close()

	loop, err := worker.NewLoop(worker.LoopConfig{
		Engine:   engine,
		Language: *language,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("Failed to create worker loop", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Worker starting",
		slog.String("endpoint", *endpoint),
		slog.String("language", *language),
	)

	if err := loop.Run(context.Background(), os.Stdin, os.Stdout); err != nil {
		logger.Error("Worker loop failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Worker stopped")
}

// initLogger creates a stderr text logger for the worker process.
func initLogger(levelName string) *slog.Logger {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
