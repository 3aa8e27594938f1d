package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/route250/MeetingMinutesSummarizer/internal/asr"
	"github.com/route250/MeetingMinutesSummarizer/internal/audio"
	"github.com/route250/MeetingMinutesSummarizer/internal/decode"
	"github.com/route250/MeetingMinutesSummarizer/internal/protocol"
)

// LoopConfig configures the in-process side of the transcription worker.
type LoopConfig struct {
	Engine        *asr.Client
	Language      string
	BufferSeconds float64
	MinChunkSec   float64
	ReadSliceSec  float64
	MinReadWindow time.Duration
	Logger        *slog.Logger
}

// Loop is the decode/inference loop that runs inside the worker process.
// It reads control and audio frames from the host on one pipe, feeds the
// audio through the ffmpeg bridge, runs recognition cycles over a rolling
// sample buffer, and writes result frames back on the other pipe.
type Loop struct {
	config LoopConfig
	logger *slog.Logger

	mu       sync.Mutex
	model    string
	language string

	consumed uint64
}

// NewLoop creates a worker loop. The language hint selects the initial
// recognition model; it can be changed at runtime with a language frame.
func NewLoop(config LoopConfig) (*Loop, error) {
	if config.Engine == nil {
		return nil, fmt.Errorf("recognition engine is required")
	}
	if config.BufferSeconds <= 0 {
		config.BufferSeconds = 30
	}
	if config.MinChunkSec <= 0 {
		config.MinChunkSec = 1.0
	}
	if config.ReadSliceSec <= 0 {
		config.ReadSliceSec = 0.2
	}
	if config.MinReadWindow <= 0 {
		config.MinReadWindow = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	model, lang := asr.ResolveModel(config.Language)

	return &Loop{
		config:   config,
		logger:   config.Logger,
		model:    model,
		language: lang,
	}, nil
}

// Run drives the loop until the audio stream ends or the decoder fails.
// A terminal frame is always written before returning so the host can
// tell a finished stream from a dead pipe.
func (l *Loop) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	frames := protocol.NewWriter(out)

	bridge, err := decode.NewBridge(l.logger)
	if err != nil {
		frames.Write(protocol.FrameEOS, nil)
		return fmt.Errorf("failed to start decoder: %w", err)
	}
	defer bridge.Close()

	go l.readFrames(in, bridge, frames)

	runErr := l.transcribeLoop(ctx, bridge, frames)

	if err := frames.Write(protocol.FrameEOS, nil); err != nil {
		l.logger.Error("Failed to write terminal frame", "error", err)
	}
	return runErr
}

// readFrames consumes host frames: audio goes to the decoder, language
// changes are applied before the next recognition call, a close frame
// ends the decoder's input.
func (l *Loop) readFrames(in io.Reader, bridge *decode.Bridge, frames *protocol.Writer) {
	defer bridge.CloseInput()

	for {
		frame, err := protocol.ReadFrame(in)
		if err != nil {
			if err != io.EOF {
				l.logger.Error("Failed to read host frame", "error", err)
			}
			return
		}

		switch frame.Type {
		case protocol.FrameAudio:
			l.consumed += uint64(len(frame.Payload))
			if _, err := bridge.Write(frame.Payload); err != nil {
				l.logger.Error("Failed to write audio to decoder", "error", err)
				return
			}
			if err := frames.Write(protocol.FrameConsumed, protocol.EncodeConsumed(l.consumed)); err != nil {
				l.logger.Error("Failed to report consumed bytes", "error", err)
				return
			}

		case protocol.FrameSetLanguage:
			lang := string(frame.Payload)
			model, language := asr.ResolveModel(lang)
			l.mu.Lock()
			l.model = model
			l.language = language
			l.mu.Unlock()
			l.logger.Info("Language changed", "lang", lang, "model", model)

		case protocol.FrameCloseAudio:
			l.logger.Info("Audio stream closed by host")
			return

		default:
			l.logger.Warn("Unexpected frame from host", "type", frame.Type)
		}
	}
}

// transcribeLoop runs recognition cycles over the rolling buffer until
// the decoder output is drained.
func (l *Loop) transcribeLoop(ctx context.Context, pcm io.Reader, frames *protocol.Writer) error {
	buffer := audio.NewFrameBuffer(l.config.BufferSeconds, audio.SampleRate)
	sliceBytes := int(l.config.ReadSliceSec*audio.SampleRate) * 2
	minChunkBytes := int(l.config.MinChunkSec*audio.SampleRate) * 2

	segSec := 1.0
	var prev []asr.Segment

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		chunk, eof, err := l.readChunk(pcm, buffer, sliceBytes, minChunkBytes)
		if err != nil {
			return fmt.Errorf("decoder read failed: %w", err)
		}

		if len(chunk) > 0 {
			samples, err := audio.BytesToSamples(chunk)
			if err != nil {
				return fmt.Errorf("bad PCM from decoder: %w", err)
			}
			buffer.Append(samples)

			segments, elapsed, err := l.transcribe(ctx, buffer, prev)
			if err != nil {
				l.logger.Warn("Recognition cycle failed", "error", err)
				if eof {
					return nil
				}
				continue
			}
			segSec = clamp(elapsed.Seconds()+1, 1, 10)

			prev = l.emit(frames, buffer, segments, prev, segSec)
		}

		if eof {
			return nil
		}

		if len(chunk) == 0 {
			// An empty chunk means the rolling buffer is full:
			// recognition is not fixing anything, so drop the oldest
			// audio and back off before retrying.
			buffer.Shift(int(segSec * audio.SampleRate))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// readChunk collects decoded PCM in small slices until enough new audio
// has arrived and a minimum wall-clock window has passed, so recognition
// neither runs on every tiny chunk nor waits indefinitely.
func (l *Loop) readChunk(pcm io.Reader, buffer *audio.FrameBuffer, sliceBytes, minChunkBytes int) ([]byte, bool, error) {
	var chunk []byte
	start := time.Now()

	for {
		free := buffer.Free()*2 - len(chunk)
		if free <= 0 {
			return chunk, false, nil
		}
		size := sliceBytes
		if size > free {
			size = free
		}

		slice := make([]byte, size)
		n, err := io.ReadFull(pcm, slice)
		if n > 0 {
			chunk = append(chunk, slice[:n]...)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return chunk, true, nil
		}
		if err != nil {
			return chunk, false, err
		}

		if len(chunk) >= minChunkBytes && time.Since(start) >= l.config.MinReadWindow {
			return chunk, false, nil
		}
	}
}

// transcribe runs one recognition call over the full buffer, priming the
// decoder with the unfixed text carried over from the previous cycle.
func (l *Loop) transcribe(ctx context.Context, buffer *audio.FrameBuffer, prev []asr.Segment) ([]asr.Segment, time.Duration, error) {
	l.mu.Lock()
	model, language := l.model, l.language
	l.mu.Unlock()

	start := time.Now()
	resp, err := l.config.Engine.Transcribe(ctx, &asr.Request{
		Samples:  buffer.Samples(),
		Model:    model,
		Language: language,
		Prompt:   asr.JoinTexts(prev),
	})
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, err
	}
	return resp.Segments, elapsed, nil
}

// emit applies segment fixation, shifts consumed audio out of the buffer,
// writes a result frame when there is anything to say, and returns the
// unfixed segments to carry into the next cycle.
func (l *Loop) emit(frames *protocol.Writer, buffer *audio.FrameBuffer, segments, prev []asr.Segment, segSec float64) []asr.Segment {
	var fixed, tentative []string

	if len(segments) > 0 {
		split := asr.SplitPoint(segments, buffer.Seconds())
		if split >= 0 {
			for i := 0; i <= split; i++ {
				segments[i].IsFixed = true
				fixed = append(fixed, segments[i].Text)
				l.logger.Info("Fixed segment", "text", segments[i].Text)
			}
			endSample := int(segments[split].End * audio.SampleRate)
			buffer.Shift(endSample)
			segments = segments[split+1:]
		}
		for _, seg := range segments {
			tentative = append(tentative, seg.Text)
		}
	} else {
		// Keep the display stable through silence: the still-unfixed
		// text from the last cycle is promoted as-is.
		for _, seg := range prev {
			fixed = append(fixed, seg.Text)
		}
		segSize := int(segSec * audio.SampleRate)
		if buffer.Len() > 2*segSize {
			buffer.TrimToTail(segSize)
		}
		segments = nil
	}

	if len(fixed) > 0 || len(tentative) > 0 {
		payload, err := protocol.EncodeResult(&protocol.TranscriptResult{
			Fixed:     fixed,
			Tentative: tentative,
		})
		if err != nil {
			l.logger.Error("Failed to encode result", "error", err)
		} else if err := frames.Write(protocol.FrameResult, payload); err != nil {
			l.logger.Error("Failed to write result frame", "error", err)
		}
	}

	return segments
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
