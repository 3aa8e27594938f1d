package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WAVHeader represents the 44-byte canonical PCM WAV header.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV frames float32 samples as a complete mono 16-bit PCM WAV file.
// Every spoken response leaving the Bot is framed this way so the client can
// play it without further context.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	pcm := SamplesToInt16(samples)

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(pcm) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV decodes 16-bit PCM WAV data into float32 samples at the
// requested rate. Stereo input keeps only the left channel; any source rate
// is resampled. The TTS engine replies with 24 kHz WAV, so this is the
// normalization point back to the 16 kHz pipeline.
func DecodeWAV(data []byte, targetRate int) ([]float32, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	buf := bytes.NewReader(data)
	var header WAVHeader
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if header.AudioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}
	if header.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}
	if header.NumChannels < 1 || header.NumChannels > 2 {
		return nil, fmt.Errorf("unsupported channel count: %d", header.NumChannels)
	}
	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	numSamples := int(header.Subchunk2Size) / 2
	if numSamples <= 0 {
		return nil, fmt.Errorf("no audio data found")
	}

	pcm := make([]int16, numSamples)
	if err := binary.Read(buf, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("failed to read audio samples: %w", err)
	}

	// Keep one channel of interleaved stereo
	if header.NumChannels == 2 {
		mono := make([]int16, len(pcm)/2)
		for i := range mono {
			mono[i] = pcm[i*2]
		}
		pcm = mono
	}

	samples := Int16ToSamples(pcm)
	if int(header.SampleRate) != targetRate {
		samples = Resample(samples, int(header.SampleRate), targetRate)
	}
	return samples, nil
}

// ValidateWAV checks the WAV container markers without decoding audio data.
func ValidateWAV(data []byte) error {
	if len(data) < 44 {
		return fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}
	return nil
}

// WAVDuration returns the duration in seconds of a WAV file.
func WAVDuration(data []byte) (float64, error) {
	if err := ValidateWAV(data); err != nil {
		return 0, err
	}

	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate == 0 {
		return 0, fmt.Errorf("invalid sample rate: 0")
	}

	channels := binary.LittleEndian.Uint16(data[22:24])
	if channels == 0 {
		return 0, fmt.Errorf("invalid channel count: 0")
	}

	dataSize := binary.LittleEndian.Uint32(data[40:44])
	numFrames := dataSize / 2 / uint32(channels)
	return float64(numFrames) / float64(sampleRate), nil
}
