package worker

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/route250/MeetingMinutesSummarizer/internal/protocol"
)

// Config configures the host-side worker handle.
type Config struct {
	// Command is the worker binary and its arguments. The engine
	// endpoint and initial language are passed here by the caller.
	Command []string
	// ResultBuffer is the capacity of the result channel.
	ResultBuffer int
	// StopTimeout bounds the graceful shutdown wait before the child
	// is killed.
	StopTimeout time.Duration
	Logger      *slog.Logger
}

// Worker is the host-side handle of a transcription worker process.
// Audio and control messages go to the child's stdin as frames; results
// and consumed-byte reports come back on its stdout.
type Worker struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   *protocol.Writer
	closer  io.Closer
	results chan *protocol.TranscriptResult
	stop    chan struct{}
	done    chan struct{}

	produced atomic.Uint64
	consumed atomic.Uint64
	running  atomic.Bool
}

// New creates a worker handle. The child process is not spawned until
// Start is called.
func New(config Config) (*Worker, error) {
	if len(config.Command) == 0 {
		return nil, fmt.Errorf("worker command cannot be empty")
	}
	if config.ResultBuffer <= 0 {
		config.ResultBuffer = 64
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 2 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Worker{config: config, logger: config.Logger}, nil
}

// Start spawns the worker process. Idempotent: a second call while the
// child is alive is a no-op. Backpressure counters reset on each spawn.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running.Load() {
		return nil
	}

	cmd := exec.Command(w.config.Command[0], w.config.Command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker process: %w", err)
	}

	w.cmd = cmd
	w.stdin = protocol.NewWriter(stdin)
	w.closer = stdin
	w.results = make(chan *protocol.TranscriptResult, w.config.ResultBuffer)
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.produced.Store(0)
	w.consumed.Store(0)
	w.running.Store(true)

	w.logger.Info("Worker process started", "pid", cmd.Process.Pid)

	go w.readResults(stdout, w.results, w.stop, w.done)

	return nil
}

// readResults pumps child frames into the result channel until the
// terminal frame arrives, the pipe breaks, or the stop signal fires
// while a send is blocked. The channel is closed either way, which is
// the end-of-stream signal for Read.
func (w *Worker) readResults(stdout io.Reader, results chan *protocol.TranscriptResult, stop, done chan struct{}) {
	defer func() {
		w.running.Store(false)
		close(results)
		w.cmd.Wait()
		close(done)
	}()

	for {
		frame, err := protocol.ReadFrame(stdout)
		if err != nil {
			if err != io.EOF {
				w.logger.Error("Worker pipe read failed", "error", err)
			}
			return
		}

		switch frame.Type {
		case protocol.FrameResult:
			result, err := protocol.DecodeResult(frame.Payload)
			if err != nil {
				w.logger.Error("Malformed result from worker", "error", err)
				return
			}
			select {
			case results <- result:
			case <-stop:
				return
			}

		case protocol.FrameConsumed:
			n, err := protocol.DecodeConsumed(frame.Payload)
			if err != nil {
				w.logger.Error("Malformed consumed report from worker", "error", err)
				return
			}
			w.consumed.Store(n)

		case protocol.FrameEOS:
			w.logger.Info("Worker signaled end of stream")
			return

		default:
			w.logger.Warn("Unexpected frame from worker", "type", frame.Type)
		}
	}
}

// AppendAudio enqueues one compressed audio chunk for decoding and
// returns the approximate queued megabytes not yet consumed by the
// decoder. A short sleep after each enqueue throttles producers that
// outrun the decoder. No-op (but still reporting) when the worker is
// not running.
func (w *Worker) AppendAudio(chunk []byte) float64 {
	if len(chunk) > 0 && w.running.Load() {
		w.mu.Lock()
		err := w.stdin.Write(protocol.FrameAudio, chunk)
		w.mu.Unlock()
		if err != nil {
			w.logger.Error("Failed to send audio to worker", "error", err)
		} else {
			w.produced.Add(uint64(len(chunk)))
			time.Sleep(10 * time.Millisecond)
		}
	}

	produced := w.produced.Load()
	consumed := w.consumed.Load()
	if produced <= consumed {
		return 0
	}
	return QueuedMB(produced - consumed)
}

// QueuedMB converts a queued byte count to the megabyte figure reported
// to clients: zero stays zero, anything under ~1 KB reads as 0.001 so a
// non-empty queue is never rounded away, and large backlogs are rounded
// coarsely.
func QueuedMB(b uint64) float64 {
	switch {
	case b == 0:
		return 0
	case b < 1049:
		return 0.001
	case b < 1048576:
		return math.Round(float64(b)/1048576*1000) / 1000
	default:
		return math.Round(float64(b)/1048576*10) / 10
	}
}

// SetLanguage asks the worker to switch recognition models before its
// next cycle. In-flight recognition is not interrupted.
func (w *Worker) SetLanguage(lang string) {
	if !w.running.Load() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.stdin.Write(protocol.FrameSetLanguage, []byte(lang)); err != nil {
		w.logger.Error("Failed to send language to worker", "error", err)
	}
}

// CloseAudio signals end of the audio stream. The worker flushes its
// remaining buffer, emits final results, and exits.
func (w *Worker) CloseAudio() {
	if !w.running.Load() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.stdin.Write(protocol.FrameCloseAudio, nil); err != nil {
		w.logger.Error("Failed to close worker audio", "error", err)
	}
}

// Read waits up to timeout for the next transcription result. It
// returns (nil, nil) on timeout and (nil, io.EOF) once the worker has
// terminated and all buffered results are drained.
func (w *Worker) Read(timeout time.Duration) (*protocol.TranscriptResult, error) {
	w.mu.Lock()
	results := w.results
	w.mu.Unlock()

	if results == nil {
		return nil, io.EOF
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result, ok := <-results:
		if !ok {
			return nil, io.EOF
		}
		return result, nil
	case <-timer.C:
		return nil, nil
	}
}

// Stop requests shutdown and waits briefly; the child is killed if it
// does not exit in time. Safe to call multiple times.
func (w *Worker) Stop() {
	w.mu.Lock()
	cmd := w.cmd
	done := w.done
	closer := w.closer
	w.mu.Unlock()

	if cmd == nil {
		return
	}

	if w.running.Load() {
		w.CloseAudio()
	}
	if closer != nil {
		closer.Close()
	}

	select {
	case <-done:
	case <-time.After(w.config.StopTimeout):
		w.logger.Warn("Worker did not exit in time, killing", "pid", cmd.Process.Pid)
		w.interrupt()
		cmd.Process.Kill()
		<-done
	}
}

// interrupt releases the reader goroutine if it is parked on a send to
// a result channel no one is draining anymore.
func (w *Worker) interrupt() {
	w.mu.Lock()
	stop := w.stop
	w.stop = nil
	w.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}
