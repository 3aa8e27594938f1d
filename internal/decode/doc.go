// Package decode wraps an external ffmpeg process that converts client
// audio uploads of arbitrary container and codec into the 16 kHz mono
// 16-bit PCM stream the recognition pipeline works on.
package decode
