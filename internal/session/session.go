package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/route250/MeetingMinutesSummarizer/internal/bot"
	"github.com/route250/MeetingMinutesSummarizer/internal/decode"
	"github.com/route250/MeetingMinutesSummarizer/internal/metrics"
	"github.com/route250/MeetingMinutesSummarizer/internal/worker"
)

// Events is the transport-facing sink for one session. Implementations
// must tolerate calls after the client has gone away.
type Events interface {
	// OnTranscription delivers one (fixed, tentative) tuple.
	OnTranscription(fixed, tentative []string)
	// OnBotResult delivers one bot output.
	OnBotResult(res *bot.VoiceRes)
	// OnEndOfStream signals that transcription for this session has
	// ended and no further events will follow.
	OnEndOfStream()
}

// Session owns one transcription worker and one bot for a client
// connection and relays between them and the transport.
type Session struct {
	ID         string
	StartTime  time.Time
	worker     *worker.Worker
	bot        *bot.Bot
	events     Events
	logger     *slog.Logger
	appMetrics *metrics.Metrics

	mu           sync.Mutex
	lastActivity time.Time
	probed       bool
	audioBytes   uint64
	results      uint64
	botOutputs   uint64
	mode         string
	language     string

	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
}

// newSession wires a session around an already-created worker and bot.
func newSession(id string, w *worker.Worker, b *bot.Bot, events Events, logger *slog.Logger, appMetrics *metrics.Metrics) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	now := time.Now()
	return &Session{
		ID:           id,
		StartTime:    now,
		lastActivity: now,
		worker:       w,
		bot:          b,
		events:       events,
		logger:       logger.With(slog.String("session_id", id)),
		appMetrics:   appMetrics,
		mode:         bot.ModeOff.String(),
		ctx:          ctx,
		cancel:       cancel,
		group:        group,
	}
}

// Start spawns the worker process, starts the bot loop, and launches the
// two relay tasks.
func (s *Session) Start() error {
	if err := s.worker.Start(); err != nil {
		return fmt.Errorf("failed to start transcription worker: %w", err)
	}
	s.bot.Start()

	s.group.Go(s.sttRelay)
	s.group.Go(s.vodRelay)

	s.logger.Info("Session started")
	return nil
}

// sttRelay pumps transcription results to the transport and feeds fixed
// text into the bot until the worker signals end of stream.
func (s *Session) sttRelay() error {
	for {
		if s.ctx.Err() != nil {
			return nil
		}

		result, err := s.worker.Read(time.Second)
		if err == io.EOF {
			s.logger.Info("Transcription stream ended")
			s.events.OnEndOfStream()
			// The stream is terminal, so the bot relay has nothing
			// left to wait for either.
			s.cancel()
			return nil
		}
		if result == nil {
			continue
		}

		if len(result.Fixed) == 0 && len(result.Tentative) == 0 {
			continue
		}

		s.mu.Lock()
		s.lastActivity = time.Now()
		s.results++
		s.mu.Unlock()
		if s.appMetrics != nil {
			s.appMetrics.RecordTranscriptionResult(len(result.Fixed), len(result.Tentative))
		}

		s.events.OnTranscription(result.Fixed, result.Tentative)
		if len(result.Fixed) > 0 {
			s.bot.Put(result.Fixed, result.Tentative)
		}
	}
}

// vodRelay pumps bot outputs to the transport.
func (s *Session) vodRelay() error {
	for {
		if s.ctx.Err() != nil {
			return nil
		}

		res := s.bot.Get(time.Second)
		if res == nil {
			continue
		}

		s.mu.Lock()
		s.lastActivity = time.Now()
		s.botOutputs++
		s.mu.Unlock()
		if s.appMetrics != nil {
			s.appMetrics.RecordBotOutput(res.Cmd.String())
		}

		s.events.OnBotResult(res)
	}
}

// AppendAudio validates the first chunk of the stream with a synchronous
// decode probe, then forwards chunks to the worker. Returns the queued
// megabytes metric for client flow control.
func (s *Session) AppendAudio(chunk []byte) (float64, error) {
	s.mu.Lock()
	probed := s.probed
	s.lastActivity = time.Now()
	s.audioBytes += uint64(len(chunk))
	s.mu.Unlock()

	if !probed {
		if err := decode.Probe(chunk, s.logger); err != nil {
			if s.appMetrics != nil {
				s.appMetrics.RecordAudioRejected()
			}
			return 0, fmt.Errorf("audio rejected: %w", err)
		}
		s.mu.Lock()
		s.probed = true
		s.mu.Unlock()
		s.logger.Info("First audio chunk validated", slog.Int("bytes", len(chunk)))
	}

	queued := s.worker.AppendAudio(chunk)
	if s.appMetrics != nil {
		s.appMetrics.RecordAudioReceived(len(chunk))
		s.appMetrics.SetQueuedMegabytes(queued)
	}
	return queued, nil
}

// UpdateSettings propagates mode and language changes. Effective from
// the next bot tick and decode cycle.
func (s *Session) UpdateSettings(mode, language string) error {
	m, err := bot.ParseMode(mode)
	if err != nil {
		return err
	}

	s.bot.SetMode(m)
	s.worker.SetLanguage(language)

	s.mu.Lock()
	s.mode = m.String()
	s.language = language
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.logger.Info("Session settings updated",
		slog.String("mode", m.String()),
		slog.String("language", language),
	)
	return nil
}

// CloseAudio signals that no more audio will arrive; the worker flushes
// and ends the stream.
func (s *Session) CloseAudio() {
	s.worker.CloseAudio()
}

// Stop tears the session down: relays cancelled, worker and bot stopped.
// Safe to call multiple times and concurrently with relay iterations.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping session")
		s.cancel()
		s.worker.Stop()
		s.bot.Stop()
		s.group.Wait()
		s.logger.Info("Session stopped",
			slog.Duration("duration", time.Since(s.StartTime)),
		)
	})
}

// LastActivity returns the time of the most recent audio, result, or
// settings traffic.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Info returns a monitoring snapshot.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:           s.ID,
		StartTime:    s.StartTime,
		LastActivity: s.lastActivity,
		Duration:     time.Since(s.StartTime),
		Mode:         s.mode,
		Language:     s.language,
		AudioBytes:   s.audioBytes,
		Results:      s.results,
		BotOutputs:   s.botOutputs,
	}
}

// Info represents session information for monitoring and APIs
type Info struct {
	ID           string        `json:"id"`
	StartTime    time.Time     `json:"start_time"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`
	Mode         string        `json:"mode"`
	Language     string        `json:"language"`
	AudioBytes   uint64        `json:"audio_bytes"`
	Results      uint64        `json:"results"`
	BotOutputs   uint64        `json:"bot_outputs"`
}
