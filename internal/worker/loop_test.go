package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/route250/MeetingMinutesSummarizer/internal/asr"
	"github.com/route250/MeetingMinutesSummarizer/internal/audio"
	"github.com/route250/MeetingMinutesSummarizer/internal/protocol"
)

func TestNewLoopRequiresEngine(t *testing.T) {
	if _, err := NewLoop(LoopConfig{}); err == nil {
		t.Error("Expected error without engine")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{0.5, 1, 10, 1},
		{3.7, 1, 10, 3.7},
		{42, 1, 10, 10},
	}
	for _, tt := range tests {
		if got := clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("clamp(%v): expected %v, got %v", tt.v, tt.want, got)
		}
	}
}

// End-to-end pass through the child loop: framed WAV audio in, decoded
// through ffmpeg, recognized against a mock engine, result frames out.
func TestLoopRun(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}

	engineSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := asr.Response{
			Text: "hello.",
			Segments: []asr.Segment{
				{Start: 0, End: 0.1, Text: "hello.", AvgLogProb: -0.2, CompressionRatio: 1.0, NoSpeechProb: 0.01},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer engineSrv.Close()

	engine, err := asr.NewClient(asr.Config{Endpoint: engineSrv.URL, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create engine client: %v", err)
	}

	loop, err := NewLoop(LoopConfig{Engine: engine, Language: "en"})
	if err != nil {
		t.Fatalf("Failed to create loop: %v", err)
	}

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(context.Background(), inR, outW)
	}()

	// Two seconds of quiet audio as a WAV stream.
	samples := make([]float32, 2*audio.SampleRate)
	for i := range samples {
		samples[i] = 0.1
	}
	wav, err := audio.EncodeWAV(samples, audio.SampleRate)
	if err != nil {
		t.Fatalf("Failed to encode test audio: %v", err)
	}

	// Input writes run concurrently: the pipes are unbuffered, so the
	// loop's own output must be drained while input is still arriving.
	writeDone := make(chan error, 1)
	go func() {
		writer := protocol.NewWriter(inW)
		if err := writer.Write(protocol.FrameAudio, wav); err != nil {
			writeDone <- err
			return
		}
		writeDone <- writer.Write(protocol.FrameCloseAudio, nil)
	}()

	var sawConsumed, sawResult, sawEOS bool
	var fixed []string

	for !sawEOS {
		frame, err := protocol.ReadFrame(outR)
		if err != nil {
			t.Fatalf("Failed to read output frame: %v", err)
		}
		switch frame.Type {
		case protocol.FrameConsumed:
			n, err := protocol.DecodeConsumed(frame.Payload)
			if err != nil {
				t.Fatalf("Bad consumed payload: %v", err)
			}
			if n != uint64(len(wav)) {
				t.Errorf("Expected %d consumed bytes, got %d", len(wav), n)
			}
			sawConsumed = true
		case protocol.FrameResult:
			result, err := protocol.DecodeResult(frame.Payload)
			if err != nil {
				t.Fatalf("Bad result payload: %v", err)
			}
			fixed = append(fixed, result.Fixed...)
			sawResult = true
		case protocol.FrameEOS:
			sawEOS = true
		}
	}

	if !sawConsumed {
		t.Error("Expected a consumed-bytes report")
	}
	if !sawResult {
		t.Error("Expected at least one result frame")
	}
	// The lone segment ends 0.1 s into a ~2 s buffer, so trailing
	// silence promotes it to fixed on the first cycle.
	if len(fixed) == 0 || fixed[0] != "hello." {
		t.Errorf("Expected fixed text hello., got %v", fixed)
	}

	if err := <-writeDone; err != nil {
		t.Errorf("Input writes failed: %v", err)
	}
	if err := <-loopDone; err != nil {
		t.Errorf("Loop returned error: %v", err)
	}
}

// slowReader serves a fixed PCM stream with a short pause before every
// read, so chunk collection is paced by wall clock the way a live
// decoder feed would be.
type slowReader struct {
	data  []byte
	off   int
	delay time.Duration
}

func (r *slowReader) Read(p []byte) (int, error) {
	time.Sleep(r.delay)
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}

// Three recognition cycles against a scripted engine: "Hello." stays
// tentative while audio keeps arriving, "World" joins it, and 1.3 s of
// trailing silence then fixes both at once. The cycle after the
// fixation must see a shifted window and an empty priming prompt.
func TestTranscribeLoopFixesAcrossCycles(t *testing.T) {
	mkseg := func(start, end float64, text string) asr.Segment {
		return asr.Segment{Start: start, End: end, Text: text, AvgLogProb: -0.2, CompressionRatio: 1.0, NoSpeechProb: 0.01}
	}

	type engineCall struct {
		prompt    string
		windowSec float64
	}
	var calls atomic.Int64
	var recorded []engineCall

	engineSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		prompt := r.FormValue("prompt")
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Engine request without audio file: %v", err)
			return
		}
		wav, err := io.ReadAll(file)
		if err != nil {
			t.Errorf("Failed to read audio file: %v", err)
			return
		}
		recorded = append(recorded, engineCall{
			prompt:    prompt,
			windowSec: float64(len(wav)-44) / float64(audio.SampleRate*2),
		})

		var segs []asr.Segment
		switch n {
		case 1:
			segs = []asr.Segment{mkseg(0, 0.9, "Hello.")}
		case 2:
			segs = []asr.Segment{mkseg(0, 0.9, "Hello."), mkseg(0.9, 1.9, "World")}
		case 3:
			// The buffer is 3.0 s here, so both segments sit in
			// front of 1.3 s of silence and get fixed together.
			segs = []asr.Segment{mkseg(0, 0.9, "Hello."), mkseg(0.9, 1.7, "World")}
		default:
			segs = []asr.Segment{mkseg(0, 0.5, "Good.")}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(asr.Response{Segments: segs})
	}))
	defer engineSrv.Close()

	engine, err := asr.NewClient(asr.Config{Endpoint: engineSrv.URL, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create engine client: %v", err)
	}

	loop, err := NewLoop(LoopConfig{
		Engine:        engine,
		Language:      "en",
		MinChunkSec:   1.0,
		ReadSliceSec:  0.1,
		MinReadWindow: 40 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create loop: %v", err)
	}

	// Four seconds of PCM at one second per cycle: the paced reader
	// delivers ten 0.1 s slices per chunk, which clears the minimum
	// read window right as the chunk reaches MinChunkSec.
	pcm := &slowReader{data: make([]byte, 4*audio.SampleRate*2), delay: 5 * time.Millisecond}

	var out bytes.Buffer
	if err := loop.transcribeLoop(context.Background(), pcm, protocol.NewWriter(&out)); err != nil {
		t.Fatalf("Loop returned error: %v", err)
	}

	var fixed []string
	frameIn := bytes.NewReader(out.Bytes())
	for {
		frame, err := protocol.ReadFrame(frameIn)
		if err != nil {
			break
		}
		if frame.Type != protocol.FrameResult {
			continue
		}
		result, err := protocol.DecodeResult(frame.Payload)
		if err != nil {
			t.Fatalf("Bad result payload: %v", err)
		}
		fixed = append(fixed, result.Fixed...)
	}

	want := []string{"Hello.", "World", "Good."}
	if len(fixed) != len(want) {
		t.Fatalf("Expected fixed %v, got %v", want, fixed)
	}
	for i := range want {
		if fixed[i] != want[i] {
			t.Errorf("Expected fixed[%d] %q, got %q", i, want[i], fixed[i])
		}
	}

	if len(recorded) != 4 {
		t.Fatalf("Expected 4 engine calls, got %d", len(recorded))
	}
	// Unfixed text from each cycle primes the next one.
	prompts := []string{"", "Hello.", "Hello. World", ""}
	for i, want := range prompts {
		if recorded[i].prompt != want {
			t.Errorf("Expected call %d prompt %q, got %q", i+1, want, recorded[i].prompt)
		}
	}
	// Fixing through 1.7 s shifts that much audio out of the window:
	// the next call sees 1.3 s of remainder plus one new second.
	windows := []float64{1.0, 2.0, 3.0, 2.3}
	for i, want := range windows {
		if diff := recorded[i].windowSec - want; diff < -0.05 || diff > 0.05 {
			t.Errorf("Expected call %d window ~%.1fs, got %.2fs", i+1, want, recorded[i].windowSec)
		}
	}
}

// Recognition that never fixes anything lets the rolling window fill up.
// The loop must shed old audio and keep consuming the stream instead of
// wedging once the buffer has no free space.
func TestTranscribeLoopShedsAudioWhenBufferFull(t *testing.T) {
	var calls atomic.Int64
	engineSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Two segments with no sentence boundary and no trailing
		// silence: the split rule keeps both tentative forever.
		resp := asr.Response{
			Text: "あの えっと",
			Segments: []asr.Segment{
				{Start: 0, End: 0.4, Text: "あの", AvgLogProb: -0.2, CompressionRatio: 1.0, NoSpeechProb: 0.01},
				{Start: 0.4, End: 0.8, Text: "えっと", AvgLogProb: -0.2, CompressionRatio: 1.0, NoSpeechProb: 0.01},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer engineSrv.Close()

	engine, err := asr.NewClient(asr.Config{Endpoint: engineSrv.URL, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create engine client: %v", err)
	}

	loop, err := NewLoop(LoopConfig{
		Engine:        engine,
		Language:      "ja",
		BufferSeconds: 1.0,
		MinChunkSec:   0.2,
		ReadSliceSec:  0.1,
		MinReadWindow: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create loop: %v", err)
	}

	// Three seconds of raw PCM against a one-second buffer: the window
	// fills after the first second, so draining the rest requires the
	// loop to drop stale audio at least twice.
	pcm := make([]byte, 3*audio.SampleRate*2)

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.transcribeLoop(context.Background(), bytes.NewReader(pcm), protocol.NewWriter(io.Discard))
	}()

	select {
	case err := <-loopDone:
		if err != nil {
			t.Errorf("Loop returned error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Loop did not drain the stream after the buffer filled")
	}
	if calls.Load() < 2 {
		t.Errorf("Expected recognition to keep running, got %d calls", calls.Load())
	}
}
