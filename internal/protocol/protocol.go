package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Frame types exchanged between the session host and the transcription
// worker process over its stdin/stdout pipes.
const (
	// Host -> worker
	FrameAudio       = 0x01 // compressed audio bytes for the decoder
	FrameSetLanguage = 0x02 // UTF-8 language tag, applied before the next ASR call
	FrameCloseAudio  = 0x03 // empty payload; signals end of the audio stream

	// Worker -> host
	FrameResult   = 0x11 // JSON-encoded TranscriptResult
	FrameConsumed = 0x12 // 8-byte cumulative count of bytes fed to the decoder
	FrameEOS      = 0x13 // terminal sentinel; no further frames will follow

	// Frame layout: [Type:1][PayloadLen:4][Payload:N]
	HeaderSize = 5

	// MaxPayloadSize bounds a single frame so a corrupted length field
	// cannot trigger an enormous allocation.
	MaxPayloadSize = 16 << 20
)

// Frame is a single length-prefixed message on a worker pipe.
type Frame struct {
	Type    uint8
	Payload []byte
}

// TranscriptResult is the payload of a FrameResult: texts the fixation
// algorithm committed to this cycle, and the current tentative tail.
type TranscriptResult struct {
	Fixed     []string `json:"fixed"`
	Tentative []string `json:"tentative"`
}

// IsValidFrameType reports whether t is a known frame type.
func IsValidFrameType(t uint8) bool {
	switch t {
	case FrameAudio, FrameSetLanguage, FrameCloseAudio,
		FrameResult, FrameConsumed, FrameEOS:
		return true
	}
	return false
}

// EncodeFrame serializes a frame into the wire layout.
func EncodeFrame(frameType uint8, payload []byte) ([]byte, error) {
	if !IsValidFrameType(frameType) {
		return nil, fmt.Errorf("unknown frame type: 0x%02x", frameType)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = frameType
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// WriteFrame encodes and writes a single frame to w.
func WriteFrame(w io.Writer, frameType uint8, payload []byte) error {
	buf, err := EncodeFrame(frameType, payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame reads a single frame from r. io.EOF is returned unchanged when
// the pipe closes cleanly at a frame boundary.
func ReadFrame(r io.Reader) (*Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	frameType := header[0]
	if !IsValidFrameType(frameType) {
		return nil, fmt.Errorf("unknown frame type: 0x%02x", frameType)
	}

	payloadLen := binary.BigEndian.Uint32(header[1:5])
	if payloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("frame payload too large: %d bytes (max %d)", payloadLen, MaxPayloadSize)
	}

	frame := &Frame{Type: frameType}
	if payloadLen > 0 {
		frame.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, frame.Payload); err != nil {
			return nil, fmt.Errorf("failed to read frame payload: %w", err)
		}
	}
	return frame, nil
}

// EncodeResult marshals a TranscriptResult into a FrameResult payload.
func EncodeResult(result *TranscriptResult) ([]byte, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript result: %w", err)
	}
	return data, nil
}

// DecodeResult unmarshals a FrameResult payload.
func DecodeResult(payload []byte) (*TranscriptResult, error) {
	var result TranscriptResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode transcript result: %w", err)
	}
	return &result, nil
}

// EncodeConsumed builds the payload of a FrameConsumed counter update.
func EncodeConsumed(total uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, total)
	return buf
}

// DecodeConsumed parses a FrameConsumed payload.
func DecodeConsumed(payload []byte) (uint64, error) {
	if len(payload) != 8 {
		return 0, fmt.Errorf("consumed counter payload must be 8 bytes, got %d", len(payload))
	}
	return binary.BigEndian.Uint64(payload), nil
}

// Writer wraps a buffered pipe writer so every frame is flushed immediately;
// the worker loop depends on frames arriving without pipe-level batching.
// Safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
	bw *bufio.Writer
}

// NewWriter creates a flushing frame writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, bw: bufio.NewWriterSize(w, 64*1024)}
}

// Write encodes the frame and flushes it to the underlying pipe.
func (fw *Writer) Write(frameType uint8, payload []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := WriteFrame(fw.bw, frameType, payload); err != nil {
		return err
	}
	if err := fw.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush frame: %w", err)
	}
	return nil
}

// String returns a human-readable representation of the frame.
func (f *Frame) String() string {
	var name string
	switch f.Type {
	case FrameAudio:
		name = "Audio"
	case FrameSetLanguage:
		name = "SetLanguage"
	case FrameCloseAudio:
		name = "CloseAudio"
	case FrameResult:
		name = "Result"
	case FrameConsumed:
		name = "Consumed"
	case FrameEOS:
		name = "EOS"
	default:
		name = fmt.Sprintf("Unknown(0x%02x)", f.Type)
	}
	return fmt.Sprintf("Frame{Type:%s, PayloadLen:%d}", name, len(f.Payload))
}
