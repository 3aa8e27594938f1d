package decode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// harmless stderr lines produced when the input stream is cut mid-frame.
var ignorableStderr = []string{
	"File ended prematurely at pos",
}

// Bridge decodes an arbitrary compressed audio stream to 16 kHz mono
// s16le PCM through an ffmpeg child process. Input chunks go to the
// child's stdin, decoded PCM is read from its stdout.
type Bridge struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	logger *slog.Logger

	stderrMu  sync.Mutex
	stderrBuf bytes.Buffer

	closeOnce sync.Once
	closeErr  error
}

// NewBridge starts an ffmpeg process reading compressed audio from stdin
// and writing 16 kHz mono 16-bit PCM to stdout.
func NewBridge(logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command("ffmpeg",
		"-err_detect", "ignore_err",
		"-ignore_unknown",
		"-i", "-",
		"-loglevel", "error",
		"-threads", "0",
		"-f", "s16le",
		"-ac", "1",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	b := &Bridge{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 64*1024),
		logger: logger,
	}

	go b.drainStderr(stderr)

	return b, nil
}

// drainStderr collects decoder diagnostics so the pipe never blocks.
func (b *Bridge) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		b.stderrMu.Lock()
		b.stderrBuf.WriteString(line)
		b.stderrBuf.WriteByte('\n')
		b.stderrMu.Unlock()
		if !isIgnorableStderr(line) {
			b.logger.Warn("ffmpeg stderr", "line", line)
		}
	}
}

func isIgnorableStderr(line string) bool {
	for _, frag := range ignorableStderr {
		if strings.Contains(line, frag) {
			return true
		}
	}
	return false
}

// Errors returns decoder diagnostics collected so far, with harmless
// end-of-stream noise filtered out.
func (b *Bridge) Errors() string {
	b.stderrMu.Lock()
	defer b.stderrMu.Unlock()

	var out []string
	for _, line := range strings.Split(b.stderrBuf.String(), "\n") {
		if line == "" || isIgnorableStderr(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Write feeds one compressed chunk to the decoder.
func (b *Bridge) Write(chunk []byte) (int, error) {
	return b.stdin.Write(chunk)
}

// Read fills p with decoded PCM bytes. Returns io.EOF once the decoder
// has exited and its output is drained.
func (b *Bridge) Read(p []byte) (int, error) {
	return b.stdout.Read(p)
}

// CloseInput signals end of the compressed stream. The decoder flushes
// remaining PCM and exits; keep reading until io.EOF.
func (b *Bridge) CloseInput() error {
	return b.stdin.Close()
}

// Close terminates the decoder. Safe to call multiple times.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.stdin.Close()

		done := make(chan error, 1)
		go func() { done <- b.cmd.Wait() }()

		select {
		case err := <-done:
			b.closeErr = err
		case <-time.After(2 * time.Second):
			b.cmd.Process.Kill()
			b.closeErr = <-done
		}
	})
	return b.closeErr
}

// Probe decodes a single chunk in a one-shot ffmpeg run and reports
// whether it yields any PCM. Used to validate the first chunk of a
// session before committing to a streaming decoder.
func Probe(chunk []byte, logger *slog.Logger) error {
	b, err := NewBridge(logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if _, err := b.Write(chunk); err != nil {
		return fmt.Errorf("failed to write probe chunk: %w", err)
	}
	if err := b.CloseInput(); err != nil {
		return fmt.Errorf("failed to close probe input: %w", err)
	}

	pcm, err := io.ReadAll(b.stdout)
	if err != nil {
		return fmt.Errorf("failed to read probe output: %w", err)
	}
	if len(pcm) == 0 {
		if diag := b.Errors(); diag != "" {
			return fmt.Errorf("probe produced no audio: %s", diag)
		}
		return fmt.Errorf("probe produced no audio")
	}
	return nil
}
