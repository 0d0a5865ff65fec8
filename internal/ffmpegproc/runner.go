// Package ffmpegproc runs ffmpeg/ffprobe as managed subprocesses: a
// sync.Once-guarded start/stop lifecycle, graceful-then-forced
// termination, and a progress channel parsed from ffmpeg's own
// "-progress pipe:1" protocol.
//
// Grounded on the teacher's internal/audiocore/utils/ffmpeg/process.go,
// adapted from a long-lived streaming audio process to a one-shot
// command-and-exit process (cut/concat/loudnorm/mux), which is what
// original_source/backend/modules/video_processor.py actually shells out
// to ffmpeg for.
package ffmpegproc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/logging"
)

var logger = logging.ForService("ffmpegproc")

// ProgressUpdate is one parsed line from ffmpeg's -progress pipe:1 output.
type ProgressUpdate struct {
	OutTime time.Duration
	Percent int // 0-99 until Done, then 100; matches video_processor.py's 99%-cap-until-end policy
	Done    bool
}

// Runner manages one ffmpeg/ffprobe subprocess invocation.
type Runner struct {
	id     string
	binary string
	args   []string

	cmd    *exec.Cmd
	ctx    context.Context
	cancel context.CancelFunc

	totalDuration time.Duration // used to compute Percent; zero disables percent calculation
	progressCh    chan ProgressUpdate
	stderrLines   chan string

	running   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once

	mu       sync.Mutex
	startErr error
	waitErr  error
	waitDone chan struct{}
	readers  sync.WaitGroup
}

// New creates a Runner for the given binary and arguments. totalDuration,
// if nonzero, is used to compute a progress percentage from ffmpeg's
// out_time_ms output.
func New(id, binary string, args []string, totalDuration time.Duration) *Runner {
	return &Runner{
		id:            id,
		binary:        binary,
		args:          args,
		totalDuration: totalDuration,
		progressCh:    make(chan ProgressUpdate, 64),
		stderrLines:   make(chan string, 64),
		waitDone:      make(chan struct{}),
	}
}

// Start launches the subprocess. It is safe to call only once; subsequent
// calls return the result of the first call.
func (r *Runner) Start(ctx context.Context) error {
	r.startOnce.Do(func() {
		r.ctx, r.cancel = context.WithCancel(ctx)
		r.startErr = r.start()
	})
	return r.startErr
}

func (r *Runner) start() error {
	logger.Debug("starting subprocess",
		"process_id", r.id,
		"binary", r.binary,
		"arg_count", len(r.args))

	r.cmd = exec.CommandContext(r.ctx, r.binary, r.args...)
	// Cancelling the context sends an interrupt first; os/exec kills the
	// process if it has not exited within WaitDelay.
	r.cmd.Cancel = func() error { return r.cmd.Process.Signal(os.Interrupt) }
	r.cmd.WaitDelay = 5 * time.Second

	stdout, err := r.cmd.StdoutPipe()
	if err != nil {
		return errs.New(err).Component("ffmpegproc").Category(errs.CategoryDependency).
			Context("operation", "create-stdout-pipe").Context("process_id", r.id).Build()
	}
	stderr, err := r.cmd.StderrPipe()
	if err != nil {
		return errs.New(err).Component("ffmpegproc").Category(errs.CategoryDependency).
			Context("operation", "create-stderr-pipe").Context("process_id", r.id).Build()
	}

	if err := r.cmd.Start(); err != nil {
		logger.Error("failed to start subprocess", "process_id", r.id, "error", err, "binary", r.binary)
		return errs.New(err).Component("ffmpegproc").Category(errs.CategoryDependency).
			Context("operation", "start").Context("process_id", r.id).Context("binary", r.binary).Build()
	}

	r.running.Store(true)
	logger.Info("subprocess started", "process_id", r.id, "pid", r.cmd.Process.Pid)

	r.readers.Add(2)
	go r.readProgress(stdout)
	go r.readStderr(stderr)
	go r.waitForExit()

	return nil
}

// waitForExit runs cmd.Wait in the background and records the result once,
// closing waitDone so Wait() can be called from any number of goroutines.
func (r *Runner) waitForExit() {
	err := r.cmd.Wait()
	r.running.Store(false)
	r.mu.Lock()
	r.waitErr = err
	r.mu.Unlock()
	r.readers.Wait() // let readProgress/readStderr drain before closing their channels
	r.closeChannels()
	close(r.waitDone)
}

// Wait blocks until the subprocess exits and returns its error, if any.
func (r *Runner) Wait() error {
	<-r.waitDone
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waitErr
}

// Progress returns the channel of parsed progress updates. It is closed
// when the subprocess exits.
func (r *Runner) Progress() <-chan ProgressUpdate {
	return r.progressCh
}

// IsRunning reports whether the subprocess is currently executing.
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// Stop terminates the subprocess: cancels its context, then waits up to 5
// seconds for a graceful exit before force-killing it. Safe to call more
// than once; only the first call takes effect.
func (r *Runner) Stop() error {
	var stopErr error
	r.stopOnce.Do(func() {
		stopErr = r.stop()
	})
	return stopErr
}

func (r *Runner) stop() error {
	if !r.running.Load() {
		return nil
	}

	logger.Info("stopping subprocess", "process_id", r.id)
	if r.cancel != nil {
		r.cancel()
	}

	select {
	case <-r.waitDone:
		return nil
	case <-time.After(5 * time.Second):
		logger.Warn("subprocess did not exit gracefully, forcing kill", "process_id", r.id)
		if r.cmd != nil && r.cmd.Process != nil {
			if err := r.cmd.Process.Kill(); err != nil {
				return errs.New(err).Component("ffmpegproc").Category(errs.CategoryDependency).
					Context("operation", "kill").Context("process_id", r.id).Build()
			}
		}
		<-r.waitDone
		return nil
	}
}

func (r *Runner) closeChannels() {
	r.closeOnce.Do(func() {
		close(r.progressCh)
		close(r.stderrLines)
	})
}

// readProgress parses ffmpeg's "-progress pipe:1" key=value stream,
// emitting an update per "progress=continue"/"progress=end" boundary.
// Grounded on video_processor.py's out_time_ms= / progress=end parsing
// loop, including the 99%-cap-until-end policy.
func (r *Runner) readProgress(stdout io.Reader) {
	defer r.readers.Done()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic in progress reader", "process_id", r.id, "panic", rec)
		}
	}()

	scanner := bufio.NewScanner(stdout)
	var outTimeMs int64
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case hasPrefix(line, "out_time_ms="):
			var v int64
			_, _ = fmt.Sscanf(line, "out_time_ms=%d", &v)
			outTimeMs = v
		case line == "progress=end":
			r.emitProgress(outTimeMs, true)
		case hasPrefix(line, "progress="):
			r.emitProgress(outTimeMs, false)
		}
	}
}

func (r *Runner) emitProgress(outTimeMs int64, done bool) {
	update := ProgressUpdate{OutTime: time.Duration(outTimeMs) * time.Microsecond, Done: done}
	if done {
		update.Percent = 100
	} else if r.totalDuration > 0 {
		pct := int(float64(update.OutTime) / float64(r.totalDuration) * 100)
		if pct > 99 {
			pct = 99 // never report 100 until progress=end is observed
		}
		if pct < 0 {
			pct = 0
		}
		update.Percent = pct
	}

	select {
	case r.progressCh <- update:
	case <-r.ctx.Done():
	default:
		// slow consumer: drop rather than block the reader
	}
}

// readStderr scans stderr for diagnostics, redacting anything that looks
// like a secret before it reaches the logger.
func (r *Runner) readStderr(stderr io.Reader) {
	defer r.readers.Done()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic in stderr reader", "process_id", r.id, "panic", rec)
		}
	}()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case r.stderrLines <- line:
		default:
			// buffer full: drop the oldest line so the newest 64 are kept
			select {
			case <-r.stderrLines:
			default:
			}
			select {
			case r.stderrLines <- line:
			default:
			}
		}
		logger.Debug("subprocess stderr", "process_id", r.id, "message", errs.RedactMessage(line))
	}
}

// StderrLines returns recent stderr lines, bounded to the last 64; used by
// callers that need to inspect ffmpeg's error text to decide on a fallback
// path (e.g. "Cannot load nvcuda.dll").
func (r *Runner) StderrLines() <-chan string {
	return r.stderrLines
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
