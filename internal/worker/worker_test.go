package worker

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/route250/MeetingMinutesSummarizer/internal/protocol"
)

func TestQueuedMB(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  float64
	}{
		{0, 0},
		{1, 0.001},
		{1048, 0.001},
		{1049, 0.001},
		{524288, 0.5},
		{1048575, 1.0},
		{1048576, 1.0},
		{5767168, 5.5},
	}

	for _, tt := range tests {
		if got := QueuedMB(tt.bytes); got != tt.want {
			t.Errorf("QueuedMB(%d): expected %v, got %v", tt.bytes, tt.want, got)
		}
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("Expected error for empty command")
	}
}

func TestWorkerLifecycle(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")

	w, err := New(Config{
		Command:     []string{os.Args[0], "-test.run=TestHelperProcess"},
		StopTimeout: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create worker: %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("Failed to start worker: %v", err)
	}
	// Idempotent start.
	if err := w.Start(); err != nil {
		t.Fatalf("Second start failed: %v", err)
	}

	chunk := []byte("compressed-audio-bytes")
	w.AppendAudio(chunk)

	result := awaitResult(t, w, 3*time.Second)
	if len(result.Fixed) != 1 || result.Fixed[0] != "echo" {
		t.Errorf("Expected fixed [echo], got %v", result.Fixed)
	}

	// The helper reports everything it received as consumed, so the
	// queue metric settles back to zero.
	deadline := time.Now().Add(2 * time.Second)
	for w.AppendAudio(nil) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Queued metric never returned to zero")
		}
		time.Sleep(10 * time.Millisecond)
	}

	w.CloseAudio()

	deadline = time.Now().Add(3 * time.Second)
	for {
		res, err := w.Read(200 * time.Millisecond)
		if err == io.EOF {
			break
		}
		if res == nil && time.Now().After(deadline) {
			t.Fatal("Never observed end of stream")
		}
	}

	w.Stop()
	w.Stop() // idempotent
}

func awaitResult(t *testing.T, w *Worker, timeout time.Duration) *protocol.TranscriptResult {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		res, err := w.Read(200 * time.Millisecond)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if res != nil {
			return res
		}
	}
	t.Fatal("Timed out waiting for result")
	return nil
}

// Stop must come back even when the child has flooded more results than
// anyone is draining and the reader goroutine is parked on a full channel.
func TestStopUnblocksFloodedResults(t *testing.T) {
	t.Setenv("GO_WANT_FLOOD_HELPER", "1")

	w, err := New(Config{
		Command:      []string{os.Args[0], "-test.run=TestFloodHelperProcess"},
		ResultBuffer: 1,
		StopTimeout:  500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create worker: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Failed to start worker: %v", err)
	}

	w.AppendAudio([]byte("audio"))

	// Wait for the burst to fill the result channel; the reader is then
	// stuck on its next send.
	deadline := time.Now().Add(2 * time.Second)
	for len(w.results) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("Result channel never filled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop hung with undrained results")
	}
}

func TestReadBeforeStart(t *testing.T) {
	w, err := New(Config{Command: []string{"true"}})
	if err != nil {
		t.Fatalf("Failed to create worker: %v", err)
	}
	if _, err := w.Read(10 * time.Millisecond); err != io.EOF {
		t.Errorf("Expected io.EOF before start, got %v", err)
	}
}

// TestFloodHelperProcess is a worker child that answers each audio frame
// with a burst of results and keeps running until its stdin closes.
func TestFloodHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_FLOOD_HELPER") != "1" {
		return
	}

	out := protocol.NewWriter(os.Stdout)
	for {
		frame, err := protocol.ReadFrame(os.Stdin)
		if err != nil {
			os.Exit(0)
		}
		if frame.Type == protocol.FrameAudio {
			payload, _ := protocol.EncodeResult(&protocol.TranscriptResult{Fixed: []string{"flood"}})
			for i := 0; i < 20; i++ {
				out.Write(protocol.FrameResult, payload)
			}
		}
	}
}

// TestHelperProcess acts as a minimal worker child for TestWorkerLifecycle.
// It echoes a fixed result for every audio frame, reports consumed bytes,
// and answers the close frame with the terminal frame.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	out := protocol.NewWriter(os.Stdout)
	var consumed uint64

	for {
		frame, err := protocol.ReadFrame(os.Stdin)
		if err != nil {
			os.Exit(0)
		}
		switch frame.Type {
		case protocol.FrameAudio:
			consumed += uint64(len(frame.Payload))
			out.Write(protocol.FrameConsumed, protocol.EncodeConsumed(consumed))
			payload, _ := protocol.EncodeResult(&protocol.TranscriptResult{Fixed: []string{"echo"}})
			out.Write(protocol.FrameResult, payload)
		case protocol.FrameCloseAudio:
			out.Write(protocol.FrameEOS, nil)
			os.Exit(0)
		}
	}
}
