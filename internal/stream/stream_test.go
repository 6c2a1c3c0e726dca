package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosoundal/goal/internal/al"
)

func TestPullAtUnityPitchConsumesOneInputFramePerOutputFrame(t *testing.T) {
	s := New(al.Format{Channels: 1, SampleRate: 8000, Encoding: al.Float32})
	s.Push([]float32{1, 2, 3, 4}, 1)

	out := make([]float32, 4)
	frames, consumedBytes := s.Pull(out, 1)

	require.Equal(t, 4, frames)
	assert.Equal(t, 16, consumedBytes) // 4 frames * 1 channel * 4 bytes
}

func TestPullFirstFrameIsPendingsFirstSampleNotZero(t *testing.T) {
	s := New(al.Format{Channels: 1, SampleRate: 8000, Encoding: al.Float32})
	s.Push([]float32{5, 6, 7, 8}, 1)

	out := make([]float32, 4)
	frames, _ := s.Pull(out, 1)

	require.Equal(t, 4, frames)
	assert.Equal(t, float32(5), out[0], "a freshly-seeded stream must emit pending's first sample, not a held-over zero")
}

func TestPullConsumedBytesScalesWithEncodingWidth(t *testing.T) {
	s := New(al.Format{Channels: 1, SampleRate: 8000, Encoding: al.Int16})
	s.Push([]float32{1, 2, 3, 4}, 1)

	out := make([]float32, 4)
	frames, consumedBytes := s.Pull(out, 1)

	require.Equal(t, 4, frames)
	assert.Equal(t, 8, consumedBytes, "Int16 frames are 2 bytes wide, not a hard-coded float32 width")
}

func TestPullReturnsFewerFramesThanAvailableInputExhausts(t *testing.T) {
	s := New(al.Format{Channels: 1, SampleRate: 8000})
	s.Push([]float32{1, 2}, 1)

	out := make([]float32, 10)
	frames, _ := s.Pull(out, 1)
	assert.Equal(t, 2, frames)
}

func TestClearResetsState(t *testing.T) {
	s := New(al.Format{Channels: 1, SampleRate: 8000})
	s.Push([]float32{1, 2, 3}, 1)
	s.Clear()

	assert.Equal(t, 0, s.AvailableOutputFrames())
	out := make([]float32, 3)
	frames, _ := s.Pull(out, 1)
	assert.Equal(t, 0, frames)
}

func TestSetPitchRejectsNonPositive(t *testing.T) {
	s := New(al.Format{Channels: 1, SampleRate: 8000})
	s.Push([]float32{1, 2, 3, 4}, 1)
	s.SetPitch(-1) // must clamp to 1 rather than corrupt playback direction

	out := make([]float32, 4)
	frames, _ := s.Pull(out, 1)
	assert.Equal(t, 4, frames, "a clamped pitch of 1 consumes one input frame per output frame")
}

func TestPullRejectsChannelMismatch(t *testing.T) {
	s := New(al.Format{Channels: 2, SampleRate: 8000})
	s.Push([]float32{1, 2, 3, 4}, 2)

	out := make([]float32, 4)
	frames, consumed := s.Pull(out, 1) // wrong channel count
	assert.Equal(t, 0, frames)
	assert.Equal(t, 0, consumed)
}
