// Package config provides configuration loading and validation for the
// transcription service. It handles YAML-based configuration with struct
// validation plus dotenv/environment overrides for credentials.
package config
