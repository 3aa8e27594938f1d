package audio

import (
	"testing"
)

func TestNewFrameBuffer(t *testing.T) {
	buf := NewFrameBuffer(30, SampleRate)

	if buf.Cap() != 30*SampleRate {
		t.Errorf("Expected capacity %d, got %d", 30*SampleRate, buf.Cap())
	}
	if buf.Len() != 0 {
		t.Errorf("Expected initial length 0, got %d", buf.Len())
	}
	if buf.Seconds() != 0 {
		t.Errorf("Expected initial duration 0, got %f", buf.Seconds())
	}
}

func TestFrameBufferAppend(t *testing.T) {
	buf := NewFrameBuffer(1, SampleRate)

	chunk := make([]float32, SampleRate/2)
	for i := range chunk {
		chunk[i] = 0.5
	}

	n := buf.Append(chunk)
	if n != len(chunk) {
		t.Errorf("Expected %d samples accepted, got %d", len(chunk), n)
	}
	if buf.Len() != len(chunk) {
		t.Errorf("Expected length %d, got %d", len(chunk), buf.Len())
	}
	if buf.Seconds() != 0.5 {
		t.Errorf("Expected 0.5 seconds, got %f", buf.Seconds())
	}
}

func TestFrameBufferAppendOverCapacity(t *testing.T) {
	buf := NewFrameBuffer(1, SampleRate)

	full := make([]float32, SampleRate)
	if n := buf.Append(full); n != SampleRate {
		t.Fatalf("Expected full append, got %d", n)
	}

	// No free space left; further samples are dropped
	if n := buf.Append([]float32{1.0}); n != 0 {
		t.Errorf("Expected 0 samples accepted into a full buffer, got %d", n)
	}
	if buf.Len() != SampleRate {
		t.Errorf("Expected length unchanged at %d, got %d", SampleRate, buf.Len())
	}
}

func TestFrameBufferShift(t *testing.T) {
	buf := NewFrameBuffer(1, SampleRate)
	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = float32(i)
	}
	buf.Append(samples)

	buf.Shift(40)
	if buf.Len() != 60 {
		t.Errorf("Expected length 60 after shift, got %d", buf.Len())
	}

	// Offset 0 must now be the previous sample at index 40
	got := buf.Samples()
	if got[0] != 40 {
		t.Errorf("Expected first sample 40, got %f", got[0])
	}
	if got[59] != 99 {
		t.Errorf("Expected last sample 99, got %f", got[59])
	}
}

func TestFrameBufferShiftZeroIsNoop(t *testing.T) {
	buf := NewFrameBuffer(1, SampleRate)
	samples := []float32{1, 2, 3, 4, 5}
	buf.Append(samples)

	buf.Shift(2)
	before := append([]float32(nil), buf.Samples()...)
	buf.Shift(0)

	if buf.Len() != len(before) {
		t.Errorf("Expected length %d after zero shift, got %d", len(before), buf.Len())
	}
	for i, v := range buf.Samples() {
		if v != before[i] {
			t.Errorf("Sample %d changed after zero shift: expected %f, got %f", i, before[i], v)
		}
	}
}

func TestFrameBufferShiftFullEmpties(t *testing.T) {
	buf := NewFrameBuffer(1, SampleRate)
	buf.Append(make([]float32, 500))

	buf.Shift(buf.Len())
	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer after full shift, got length %d", buf.Len())
	}

	// Shifting past the end behaves the same
	buf.Append(make([]float32, 10))
	buf.Shift(100)
	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer after over-shift, got length %d", buf.Len())
	}
}

func TestFrameBufferTrimToTail(t *testing.T) {
	buf := NewFrameBuffer(1, SampleRate)
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = float32(i)
	}
	buf.Append(samples)

	buf.TrimToTail(100)
	if buf.Len() != 100 {
		t.Errorf("Expected length 100 after trim, got %d", buf.Len())
	}
	if buf.Samples()[0] != 900 {
		t.Errorf("Expected first sample 900 after trim, got %f", buf.Samples()[0])
	}

	// Trimming to more than the current length is a no-op
	buf.TrimToTail(500)
	if buf.Len() != 100 {
		t.Errorf("Expected length unchanged at 100, got %d", buf.Len())
	}
}
