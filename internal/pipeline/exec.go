package pipeline

import (
	"context"
	"time"

	"github.com/kestrelmedia/narrationforge/internal/cancelreg"
	"github.com/kestrelmedia/narrationforge/internal/ffmpegproc"
)

// CancelHook optionally registers a running subprocess against a
// (scope, project, task) so an external Cancel call can terminate it
// directly, mirroring video_processor.py's _register_proc/_unregister_proc
// pattern. Nil is a valid CancelHook: no registration is attempted.
type CancelHook struct {
	Registry  *cancelreg.Registry
	Scope     string
	ProjectID string
	TaskID    string
}

func (h *CancelHook) register(r *ffmpegproc.Runner) {
	if h == nil || h.Registry == nil {
		return
	}
	h.Registry.RegisterProcess(h.Scope, h.ProjectID, h.TaskID, r)
}

func (h *CancelHook) unregister(r *ffmpegproc.Runner) {
	if h == nil || h.Registry == nil {
		return
	}
	h.Registry.UnregisterProcess(h.Scope, h.ProjectID, h.TaskID, r)
}

// runResult is the outcome of a one-shot ffmpeg invocation.
type runResult struct {
	exitErr     error
	stderrTail  []string
	lastPercent int
}

// runFFmpeg launches one ffmpeg invocation through ffmpegproc.Runner,
// registers it with hook for external cancellation, drains its progress
// channel (invoking onProgress if non-nil), and waits for completion.
func runFFmpeg(ctx context.Context, id, ffmpegPath string, args []string, totalDuration time.Duration, hook *CancelHook, onProgress func(percent int)) runResult {
	r := ffmpegproc.New(id, ffmpegPath, args, totalDuration)
	if err := r.Start(ctx); err != nil {
		return runResult{exitErr: err}
	}
	hook.register(r)
	defer hook.unregister(r)

	var lastPct int
	var tail []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range r.StderrLines() {
			tail = append(tail, line)
			if len(tail) > 64 {
				tail = tail[len(tail)-64:]
			}
		}
	}()
	for update := range r.Progress() {
		lastPct = update.Percent
		if onProgress != nil {
			onProgress(update.Percent)
		}
	}
	<-done

	return runResult{exitErr: r.Wait(), stderrTail: tail, lastPercent: lastPct}
}
