package audio

// FrameBuffer is a fixed-capacity rolling window of float32 samples owned by
// a single transcription worker loop. The first Len() samples are valid,
// contiguous, time-ordered audio; offset 0 is always the oldest sample that
// has not been fixed yet. Not safe for concurrent use; the worker loop is
// the only writer and reader.
type FrameBuffer struct {
	samples    []float32
	length     int
	sampleRate int
}

// NewFrameBuffer creates a buffer holding up to seconds of audio at rate.
func NewFrameBuffer(seconds float64, rate int) *FrameBuffer {
	capacity := int(seconds * float64(rate))
	return &FrameBuffer{
		samples:    make([]float32, capacity),
		sampleRate: rate,
	}
}

// Append copies samples onto the end of the valid region and returns how
// many were accepted. Samples beyond the remaining capacity are dropped.
func (b *FrameBuffer) Append(samples []float32) int {
	free := len(b.samples) - b.length
	n := len(samples)
	if n > free {
		n = free
	}
	copy(b.samples[b.length:b.length+n], samples[:n])
	b.length += n
	return n
}

// Shift drops the oldest n samples and left-compacts the remainder so that
// offset 0 is again the oldest unfixed sample. Shifting by zero is a no-op;
// shifting by Len() or more empties the buffer.
func (b *FrameBuffer) Shift(n int) {
	if n <= 0 {
		return
	}
	if n >= b.length {
		b.length = 0
		return
	}
	copy(b.samples[0:b.length-n], b.samples[n:b.length])
	b.length -= n
}

// TrimToTail keeps only the most recent keep samples, discarding the head.
// Used to bound memory during long silences when nothing is being fixed.
func (b *FrameBuffer) TrimToTail(keep int) {
	if keep < 0 {
		keep = 0
	}
	if b.length <= keep {
		return
	}
	b.Shift(b.length - keep)
}

// Samples returns the valid region of the buffer. The slice aliases the
// buffer's storage and is only valid until the next mutation.
func (b *FrameBuffer) Samples() []float32 {
	return b.samples[:b.length]
}

// Len returns the number of valid samples.
func (b *FrameBuffer) Len() int {
	return b.length
}

// Cap returns the buffer capacity in samples.
func (b *FrameBuffer) Cap() int {
	return len(b.samples)
}

// Free returns the remaining capacity in samples.
func (b *FrameBuffer) Free() int {
	return len(b.samples) - b.length
}

// Seconds returns the duration of the valid region.
func (b *FrameBuffer) Seconds() float64 {
	return float64(b.length) / float64(b.sampleRate)
}
