package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlignWindowLeavesWindowUnchangedWhenAudioMatchesExactly(t *testing.T) {
	result := AlignWindow(10*time.Second, 5*time.Second, 5*time.Second, 120*time.Second)
	assert.False(t, result.Changed)
	assert.Equal(t, 10*time.Second, result.Start)
	assert.Equal(t, 5*time.Second, result.Duration)
}

func TestAlignWindowExtendsForEvenASmallAudioOverageWithForwardRoom(t *testing.T) {
	// the shrink-side 50ms tolerance does not apply when audio runs long:
	// any overage with forward room available extends the window.
	result := AlignWindow(10*time.Second, 5*time.Second, 5020*time.Millisecond, 120*time.Second)
	assert.True(t, result.Changed)
	assert.Equal(t, 10*time.Second, result.Start)
	assert.Equal(t, 5020*time.Millisecond, result.Duration)
}

func TestAlignWindowShrinksWhenAudioShorterByMoreThanTolerance(t *testing.T) {
	result := AlignWindow(10*time.Second, 5*time.Second, 3*time.Second, 120*time.Second)
	assert.True(t, result.Changed)
	assert.Equal(t, 10*time.Second, result.Start)
	assert.Equal(t, 3*time.Second, result.Duration)
}

func TestAlignWindowExtendsEndWhenForwardRoomSuffices(t *testing.T) {
	// window [10,15), audio needs 2s more, 100s of video remain forward
	result := AlignWindow(10*time.Second, 5*time.Second, 7*time.Second, 120*time.Second)
	assert.True(t, result.Changed)
	assert.Equal(t, 10*time.Second, result.Start)
	assert.Equal(t, 7*time.Second, result.Duration)
}

func TestAlignWindowShiftsStartBackWhenForwardRoomInsufficient(t *testing.T) {
	// window [118,120) near the end of a 120s video; audio needs 5s, only 0s forward room
	result := AlignWindow(118*time.Second, 2*time.Second, 7*time.Second, 120*time.Second)
	assert.True(t, result.Changed)
	assert.Equal(t, 113*time.Second, result.Start)
	assert.Equal(t, 7*time.Second, result.Duration)
	assert.Equal(t, 120*time.Second, result.Start+result.Duration)
}

func TestAlignWindowClampsShiftBackToVideoStart(t *testing.T) {
	// a huge audio requirement would shift the start before 0; clamp to 0
	result := AlignWindow(1*time.Second, 1*time.Second, 50*time.Second, 10*time.Second)
	assert.True(t, result.Changed)
	assert.Equal(t, time.Duration(0), result.Start)
	assert.Equal(t, 10*time.Second, result.Duration)
}
