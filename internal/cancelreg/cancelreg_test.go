package cancelreg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProc struct {
	stopped bool
}

func (p *fakeProc) Stop() error {
	p.stopped = true
	return nil
}

func TestCancelCancelsContext(t *testing.T) {
	r := New()
	ctx, release := r.Register(context.Background(), "tts", "p1", "t1")
	defer release()

	ok := r.Cancel("tts", "p1", "t1")
	require.True(t, ok)

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected context to be cancelled")
	}
}

func TestCancelStopsRegisteredProcesses(t *testing.T) {
	r := New()
	_, release := r.Register(context.Background(), "generate_video", "p1", "t1")
	defer release()

	proc := &fakeProc{}
	r.RegisterProcess("generate_video", "p1", "t1", proc)

	r.Cancel("generate_video", "p1", "t1")
	assert.True(t, proc.stopped)
}

func TestCancelIsIdempotent(t *testing.T) {
	r := New()
	_, release := r.Register(context.Background(), "tts", "p1", "t1")
	defer release()

	assert.True(t, r.Cancel("tts", "p1", "t1"))
	assert.False(t, r.Cancel("tts", "p1", "t1"), "a second cancel on an already-cancelled task must be a no-op")
}

func TestCancelUnknownTaskReturnsFalse(t *testing.T) {
	r := New()
	assert.False(t, r.Cancel("tts", "missing", "missing"))
}

func TestRegisterProcessAfterCancelStopsImmediately(t *testing.T) {
	r := New()
	_, release := r.Register(context.Background(), "tts", "p1", "t1")
	defer release()

	r.Cancel("tts", "p1", "t1")

	proc := &fakeProc{}
	r.RegisterProcess("tts", "p1", "t1", proc)
	assert.True(t, proc.stopped, "registering a process after cancellation must stop it right away")
}

func TestUnregisterProcessRemovesFromList(t *testing.T) {
	r := New()
	_, release := r.Register(context.Background(), "tts", "p1", "t1")
	defer release()

	proc := &fakeProc{}
	r.RegisterProcess("tts", "p1", "t1", proc)
	r.UnregisterProcess("tts", "p1", "t1", proc)

	r.Cancel("tts", "p1", "t1")
	assert.False(t, proc.stopped, "an unregistered process must not be stopped by a later cancel")
}

func TestIsCancelledReflectsState(t *testing.T) {
	r := New()
	_, release := r.Register(context.Background(), "tts", "p1", "t1")
	defer release()

	assert.False(t, r.IsCancelled("tts", "p1", "t1"))
	r.Cancel("tts", "p1", "t1")
	assert.True(t, r.IsCancelled("tts", "p1", "t1"))
}
