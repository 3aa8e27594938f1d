// Package protocol implements the framed pipe protocol between the session
// host and transcription worker processes. It handles length-prefixed binary
// frames carrying compressed audio, control messages, transcript results,
// and decoder-consumed byte counters for backpressure accounting.
package protocol
