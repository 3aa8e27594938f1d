// Package audio handles PCM sample conversion, WAV encoding/decoding, and
// the rolling frame buffer used by the transcription worker. Samples are
// float32 in [-1, 1] at 16 kHz mono internally; the wire format is
// little-endian 16-bit PCM.
package audio
