package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/route250/MeetingMinutesSummarizer/internal/audio"
)

// Config contains VOICEVOX engine configuration.
type Config struct {
	// Hosts are candidate servers probed in order; the first responsive
	// one is used for the process lifetime.
	Hosts []string
	Port  int
	// Speaker selects the voice style; Speed and Pitch adjust the
	// engine's own scales multiplicatively and additively.
	Speaker      int
	Speed        float64
	Pitch        float64
	ProbeTimeout time.Duration
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Engine synthesizes speech through a VOICEVOX server. Discovery of the
// server happens lazily on first use and the result is cached.
type Engine struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	baseURL  string
	resolved bool
}

// NewEngine creates a VOICEVOX client.
func NewEngine(config Config) *Engine {
	if len(config.Hosts) == 0 {
		config.Hosts = []string{"127.0.0.1"}
	}
	if config.Port <= 0 {
		config.Port = 50021
	}
	if config.Speaker <= 0 {
		config.Speaker = DefaultSpeaker
	}
	if config.Speed <= 0 {
		config.Speed = 1.0
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 180 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Engine{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger,
	}
}

// Speaker returns the configured voice style id.
func (e *Engine) Speaker() int {
	return e.config.Speaker
}

// baseURLLocked resolves and caches the server URL.
func (e *Engine) resolveBaseURL(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.resolved {
		e.baseURL = FindFirstResponsiveHost(ctx, e.config.Hosts, e.config.Port, e.config.ProbeTimeout)
		e.resolved = true
		if e.baseURL != "" {
			e.logger.Info("VOICEVOX server found", "url", e.baseURL)
		}
	}
	if e.baseURL == "" {
		return "", fmt.Errorf("no responsive VOICEVOX server among %v", e.config.Hosts)
	}
	return e.baseURL, nil
}

// Synthesize converts text to a 16 kHz mono 16-bit WAV. Text that opens
// with a code fence is replaced by a single space, which the engine
// renders as silence instead of an error.
func (e *Engine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	base, err := e.resolveBaseURL(ctx)
	if err != nil {
		return nil, err
	}

	if text == "" || strings.HasPrefix(text, "```") {
		text = " "
	}

	query, err := e.audioQuery(ctx, base, text)
	if err != nil {
		return nil, err
	}

	// Adjust the engine's prosody scales before synthesis.
	if v, ok := query["speedScale"].(float64); ok {
		query["speedScale"] = v * e.config.Speed
	}
	if v, ok := query["pitchScale"].(float64); ok {
		query["pitchScale"] = v + e.config.Pitch
	}

	wav, err := e.synthesis(ctx, base, query)
	if err != nil {
		return nil, err
	}

	samples, err := audio.DecodeWAV(wav, audio.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to decode synthesized audio: %w", err)
	}

	out, err := audio.EncodeWAV(samples, audio.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode synthesized audio: %w", err)
	}
	return out, nil
}

// audioQuery asks the engine to build the synthesis parameters for text.
func (e *Engine) audioQuery(ctx context.Context, base, text string) (map[string]any, error) {
	params := url.Values{}
	params.Set("text", text)
	params.Set("speaker", strconv.Itoa(e.config.Speaker))

	req, err := http.NewRequestWithContext(ctx, "POST", base+"/audio_query?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio_query request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio_query failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio_query response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio_query HTTP %d: %s", resp.StatusCode, string(body))
	}

	var query map[string]any
	if err := json.Unmarshal(body, &query); err != nil {
		return nil, fmt.Errorf("failed to parse audio_query response: %w", err)
	}
	return query, nil
}

// synthesis renders the adjusted query to WAV bytes.
func (e *Engine) synthesis(ctx context.Context, base string, query map[string]any) ([]byte, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode synthesis payload: %w", err)
	}

	params := url.Values{}
	params.Set("speaker", strconv.Itoa(e.config.Speaker))

	req, err := http.NewRequestWithContext(ctx, "POST", base+"/synthesis?"+params.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesis HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
