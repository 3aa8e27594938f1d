// Package asr defines the speech recognition segment model, the confidence
// filter and segment-fixation algorithm that stabilize incremental
// transcription output, and the HTTP client for the recognition engine.
package asr
