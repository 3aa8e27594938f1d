package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/route250/MeetingMinutesSummarizer/internal/config"
	"github.com/route250/MeetingMinutesSummarizer/internal/metrics"
	"github.com/route250/MeetingMinutesSummarizer/internal/session"
)

// HTTPServer provides the WebSocket endpoint plus HTTP API endpoints
// for monitoring and management
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	sessionMgr *session.Manager
	wsHandler  *WSHandler
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP server hosting the WebSocket
// transport and the monitoring API
func NewHTTPServer(cfg config.ServerConfig, logger *slog.Logger,
	appConfig *config.Config, sessionMgr *session.Manager, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		sessionMgr: sessionMgr,
		metrics:    m,
		startTime:  time.Now(),
	}

	h.wsHandler = NewWSHandler(sessionMgr, logger, WSConfig{
		ReadLimit:    int64(cfg.WSReadLimitMB) << 20,
		WriteTimeout: cfg.GetWriteTimeoutDuration(),
	})

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// WebSocket transport. Not wrapped with metrics: the wrapper's
	// response writer does not implement http.Hijacker, which the
	// upgrade needs.
	mux.Handle("/ws", h.wsHandler)

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Sessions monitoring endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "meeting-minutes-summarizer",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"session_manager": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.sessionMgr.GetActiveSessionCount(),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.sessionMgr.GetAllSessions()

	response := map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements the /sessions/{id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Extract session ID from URL path
	sessionID := r.URL.Path[len("/sessions/"):]
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	s, exists := h.sessionMgr.GetSession(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Info())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":             h.config.Server.Port,
			"address":          h.config.Server.Address,
			"ws_read_limit_mb": h.config.Server.WSReadLimitMB,
			"write_timeout":    h.config.Server.WriteTimeout,
		},
		"transcription": map[string]interface{}{
			"endpoint":       h.config.Transcription.Endpoint,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			// Note: API key is intentionally omitted for security
		},
		"worker": map[string]interface{}{
			"command":  h.config.Worker.Command,
			"language": h.config.Worker.Language,
		},
		"llm": map[string]interface{}{
			"model":    h.config.LLM.Model,
			"base_url": h.config.LLM.BaseURL,
			"timeout":  h.config.LLM.Timeout,
			// Note: API key is intentionally omitted for security
		},
		"tts": map[string]interface{}{
			"enabled": h.config.TTS.Enabled,
			"port":    h.config.TTS.Port,
			"speaker": h.config.TTS.Speaker,
			"speed":   h.config.TTS.Speed,
			"pitch":   h.config.TTS.Pitch,
		},
		"sessions": map[string]interface{}{
			"idle_timeout": h.config.Sessions.IdleTimeout,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.sessionMgr.GetAllSessions()

	var audioBytes, results, botOutputs uint64
	for _, info := range infos {
		audioBytes += info.AudioBytes
		results += info.Results
		botOutputs += info.BotOutputs
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count":        len(infos),
			"audio_bytes":         audioBytes,
			"transcription_count": results,
			"bot_output_count":    botOutputs,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Meeting Minutes Summarizer",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":              "API documentation",
			"GET /ws":            "WebSocket transport (audio in, transcription and bot events out)",
			"GET /health":        "Service health check",
			"GET /sessions":      "List all active sessions",
			"GET /sessions/{id}": "Get detailed session information",
			"GET /config":        "Current configuration (sanitized)",
			"GET /stats":         "Service statistics",
			"GET /metrics":       "Prometheus metrics",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
