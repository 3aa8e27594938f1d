package asr

import (
	"strings"
)

// DefaultModel is used when no language hint is set or the hint is unknown.
// Recognition runs with language detection off in that case.
const DefaultModel = "mlx-community/whisper-tiny.en-mlx-q4"

// modelEntry pairs a model repository with the language it is pinned to.
// An empty language means multilingual with auto-detection.
type modelEntry struct {
	model string
	lang  string
}

// aliases collapse plain language tags to a concrete model name.
var aliases = map[string]string{
	"en": "small.en",
	"ja": "kotoba",
}

var models = map[string]modelEntry{
	"kotoba": {"kaiinui/kotoba-whisper-v1.1-mlx", "ja"},

	"tiny.ja":   {"mlx-community/whisper-tiny-mlx-q4", "ja"},
	"base.ja":   {"mlx-community/whisper-base-mlx-q4", "ja"},
	"small.ja":  {"mlx-community/whisper-small-mlx-q4", "ja"},
	"medium.ja": {"mlx-community/whisper-medium-mlx-q4", "ja"},
	"large.ja":  {"mlx-community/whisper-large-v3-turbo-q4", "ja"},

	"tiny.en":  {"mlx-community/whisper-tiny.en-mlx-q4", "en"},
	"base.en":  {"mlx-community/whisper-base.en-mlx-q4", "en"},
	"small.en": {"mlx-community/whisper-small.en-mlx-q4", "en"},

	"tiny":   {"mlx-community/whisper-tiny-mlx-q4", ""},
	"base":   {"mlx-community/whisper-base-mlx-q4", ""},
	"small":  {"mlx-community/whisper-small-mlx-q4", ""},
	"medium": {"mlx-community/whisper-medium-mlx-q4", ""},
	"large":  {"mlx-community/whisper-large-v3-turbo-q4", ""},
}

// ResolveModel maps a client language hint to a model repository and the
// language passed to the engine. BCP-47 style tags collapse to their
// primary subtag ("en-US" -> "en"). Unknown hints and "off" fall back to
// the default English model with detection disabled.
func ResolveModel(lang string) (model string, language string) {
	key := strings.ToLower(strings.TrimSpace(lang))
	if key == "" || key == "off" {
		return DefaultModel, ""
	}

	if strings.HasPrefix(key, "en-") {
		key = "en"
	} else if strings.HasPrefix(key, "ja-") {
		key = "ja"
	}

	if alias, ok := aliases[key]; ok {
		key = alias
	}

	if entry, ok := models[key]; ok {
		return entry.model, entry.lang
	}
	return DefaultModel, ""
}
