package audio

import (
	"fmt"
)

// SampleRate is the internal processing rate for all audio in the service.
const SampleRate = 16000

// BytesToSamples converts little-endian 16-bit PCM bytes to float32 samples
// in [-1, 1]. The byte length must be even.
func BytesToSamples(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even, got %d bytes", len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}

// SamplesToBytes converts float32 samples to little-endian 16-bit PCM bytes.
// Samples outside [-1, 1] are clipped.
func SamplesToBytes(samples []float32) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := clipSample(s)
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	return data
}

// SamplesToInt16 converts float32 samples to 16-bit PCM samples with clipping.
func SamplesToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = clipSample(s)
	}
	return out
}

// Int16ToSamples converts 16-bit PCM samples to float32 in [-1, 1].
func Int16ToSamples(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, v := range pcm {
		out[i] = float32(v) / 32768.0
	}
	return out
}

func clipSample(s float32) int16 {
	if s > 1.0 {
		s = 1.0
	} else if s < -1.0 {
		s = -1.0
	}
	return int16(s * 32767.0)
}

// Resample converts samples from one rate to another by linear
// interpolation. The TTS engine returns 24 kHz audio that has to be brought
// down to the 16 kHz processing rate; linear interpolation is adequate for
// speech at these rates.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	outLen := int(int64(len(samples)) * int64(toRate) / int64(fromRate))
	if outLen == 0 {
		return nil
	}

	out := make([]float32, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}
