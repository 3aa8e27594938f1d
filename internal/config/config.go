package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Worker        WorkerConfig        `yaml:"worker"`
	LLM           LLMConfig           `yaml:"llm"`
	TTS           TTSConfig           `yaml:"tts"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains the HTTP/WebSocket server configuration
type ServerConfig struct {
	Port          int    `yaml:"port"`
	Address       string `yaml:"address"`
	WSReadLimitMB int    `yaml:"ws_read_limit_mb"`
	WriteTimeout  int    `yaml:"write_timeout"` // seconds
}

// TranscriptionConfig contains the speech recognition API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// WorkerConfig contains the per-session transcription worker configuration
type WorkerConfig struct {
	// Command is the worker binary; endpoint and credentials are passed
	// as flags built from TranscriptionConfig.
	Command  string `yaml:"command"`
	Language string `yaml:"language"`
}

// LLMConfig contains the chat completion configuration
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout"` // seconds
}

// TTSConfig contains the VOICEVOX speech synthesis configuration
type TTSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Hosts   []string `yaml:"hosts"`
	Port    int      `yaml:"port"`
	Speaker int      `yaml:"speaker"`
	Speed   float64  `yaml:"speed"`
	Pitch   float64  `yaml:"pitch"`
}

// SessionsConfig contains session lifecycle configuration
type SessionsConfig struct {
	IdleTimeout int `yaml:"idle_timeout"` // seconds, 0 disables cleanup
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// EnvFile is the optional dotenv file loaded before environment
// overrides are applied.
const EnvFile = "setting.env"

// Load reads and parses the configuration file, then applies
// environment overrides from the process environment and EnvFile.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyEnv overlays credentials and host overrides from the
// environment. EnvFile is loaded first if present; variables already
// set in the process environment win.
func (c *Config) ApplyEnv() {
	godotenv.Load(EnvFile)

	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && c.LLM.BaseURL == "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("TRANSCRIBE_API_KEY"); v != "" && c.Transcription.APIKey == "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv("VOICEVOX_HOST"); v != "" {
		c.TTS.Hosts = append([]string{v}, c.TTS.Hosts...)
	}
	if v := os.Getenv("VOICEVOX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.TTS.Port = port
		}
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Worker.Validate(); err != nil {
		return fmt.Errorf("worker config: %w", err)
	}

	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}

	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}

	if err := c.Sessions.Validate(); err != nil {
		return fmt.Errorf("sessions config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.WSReadLimitMB < 1 {
		return fmt.Errorf("ws_read_limit_mb must be at least 1, got %d", s.WSReadLimitMB)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates worker configuration
func (w *WorkerConfig) Validate() error {
	if w.Command == "" {
		return fmt.Errorf("command cannot be empty")
	}

	return nil
}

// Validate validates LLM configuration. An empty API key is allowed;
// bot modes that need completions will fail at call time instead.
func (l *LLMConfig) Validate() error {
	if l.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", l.Timeout)
	}

	return nil
}

// Validate validates TTS configuration
func (t *TTSConfig) Validate() error {
	if !t.Enabled {
		return nil
	}

	if len(t.Hosts) == 0 {
		return fmt.Errorf("hosts cannot be empty when tts is enabled")
	}

	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", t.Port)
	}

	if t.Speaker < 0 {
		return fmt.Errorf("speaker cannot be negative, got %d", t.Speaker)
	}

	if t.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %f", t.Speed)
	}

	return nil
}

// Validate validates sessions configuration
func (s *SessionsConfig) Validate() error {
	if s.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout cannot be negative, got %d", s.IdleTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetWriteTimeoutDuration returns the server write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the LLM timeout as a time.Duration
func (l *LLMConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}

// GetIdleTimeoutDuration returns the session idle timeout as a time.Duration
func (s *SessionsConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// Default returns a configuration with the defaults used when no file
// is provided.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          5000,
			Address:       "0.0.0.0",
			WSReadLimitMB: 4,
			WriteTimeout:  10,
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "http://127.0.0.1:8080/inference",
			Timeout:       30,
			MaxRetries:    2,
			MaxConcurrent: 4,
		},
		Worker: WorkerConfig{
			Command:  "sttworker",
			Language: "ja",
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60,
		},
		TTS: TTSConfig{
			Enabled: true,
			Hosts:   []string{"127.0.0.1"},
			Port:    50021,
			Speaker: 8,
			Speed:   1.0,
			Pitch:   0.0,
		},
		Sessions: SessionsConfig{
			IdleTimeout: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}
