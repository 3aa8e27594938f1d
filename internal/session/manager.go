package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/route250/MeetingMinutesSummarizer/internal/bot"
	"github.com/route250/MeetingMinutesSummarizer/internal/metrics"
	"github.com/route250/MeetingMinutesSummarizer/internal/worker"
)

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	// WorkerCommand is the transcription worker binary and its base
	// arguments, spawned once per session.
	WorkerCommand []string
	Completer     bot.Completer
	Synthesizer   bot.Synthesizer
	Metrics       *metrics.Metrics
}

// Manager manages all active transcription sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	timeout  time.Duration
	config   ManagerConfig

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a new session manager and starts its idle-session
// cleanup routine.
func NewManager(logger *slog.Logger, timeout time.Duration, config ManagerConfig) (*Manager, error) {
	if len(config.WorkerCommand) == 0 {
		return nil, fmt.Errorf("worker command cannot be empty")
	}
	if config.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		timeout:  timeout,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr, nil
}

// CreateSession builds and starts a session for one client connection.
func (m *Manager) CreateSession(events Events) (*Session, error) {
	id := uuid.New().String()

	w, err := worker.New(worker.Config{
		Command: m.config.WorkerCommand,
		Logger:  m.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	b, err := bot.New(bot.Config{
		Completer:   m.config.Completer,
		Synthesizer: m.config.Synthesizer,
		Logger:      m.logger.With(slog.String("session_id", id)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	s := newSession(id, w, b, events, m.logger, m.config.Metrics)
	if err := s.Start(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	if m.config.Metrics != nil {
		m.config.Metrics.RecordSessionCreated()
		m.config.Metrics.SetActiveSessions(count)
	}

	m.logger.Info("Created new session",
		slog.String("session_id", id),
		slog.Int("active_sessions", count),
	)

	return s, nil
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[id]
	return s, exists
}

// GetActiveSessionCount returns the number of currently active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a monitoring snapshot of all active sessions
func (m *Manager) GetAllSessions() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// RemoveSession stops and removes a session
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	s, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return false
	}

	s.Stop()

	if m.config.Metrics != nil {
		m.config.Metrics.RecordSessionDestroyed(time.Since(s.StartTime).Seconds())
		m.config.Metrics.SetActiveSessions(count)
	}

	m.logger.Info("Session removed",
		slog.String("session_id", id),
		slog.Duration("duration", time.Since(s.StartTime)),
	)
	return true
}

// Stop gracefully stops the session manager
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}

	// Cancel context to stop cleanup routine
	m.cancel()
	<-m.cleanup

	m.logger.Info("Session manager stopped",
		slog.Int("stopped_sessions", len(sessions)),
	)
}

// startCleanupRoutine runs in a separate goroutine to clean up idle sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("timeout", m.timeout),
		slog.Duration("check_interval", 30*time.Second),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupIdleSessions()
		}
	}
}

// cleanupIdleSessions removes sessions that have been inactive for too long
func (m *Manager) cleanupIdleSessions() {
	if m.timeout <= 0 {
		return
	}

	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity()) > m.timeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up idle sessions",
			slog.Int("expired_count", len(expired)),
		)
		for _, id := range expired {
			m.RemoveSession(id)
		}
	}
}
