package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosoundal/goal/internal/al"
)

func TestGenerateIsBufferDelete(t *testing.T) {
	s := New()
	names, err := s.Generate(3)
	require.NoError(t, err)
	assert.Len(t, names, 3)
	for _, n := range names {
		assert.True(t, s.IsBuffer(n))
	}

	require.NoError(t, s.Delete(names[:1]))
	assert.False(t, s.IsBuffer(names[0]))
	assert.True(t, s.IsBuffer(names[1]))
}

func TestDeleteRejectsRetainedBuffer(t *testing.T) {
	s := New()
	names, _ := s.Generate(1)
	require.NoError(t, s.Retain(names[0]))

	err := s.Delete(names)
	assert.Error(t, err)
	assert.True(t, s.IsBuffer(names[0]), "a rejected delete must not remove the buffer")
}

func TestDeleteIsAllOrNothing(t *testing.T) {
	s := New()
	names, _ := s.Generate(2)
	require.NoError(t, s.Retain(names[1]))

	err := s.Delete(names)
	assert.Error(t, err)
	assert.True(t, s.IsBuffer(names[0]), "first name must survive a rejected batch delete")
	assert.True(t, s.IsBuffer(names[1]))
}

func TestLoadAndPayload(t *testing.T) {
	s := New()
	names, _ := s.Generate(1)
	format := al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 16000}
	samples := []float32{0.1, 0.2, 0.3}

	require.NoError(t, s.Load(names[0], format, samples))

	payload, gotFormat, err := s.Payload(names[0])
	require.NoError(t, err)
	assert.Equal(t, format, gotFormat)
	assert.Equal(t, samples, payload)
}

func TestLoadRejectedWhileInUse(t *testing.T) {
	s := New()
	names, _ := s.Generate(1)
	format := al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 16000}
	require.NoError(t, s.Load(names[0], format, []float32{1}))
	require.NoError(t, s.Retain(names[0]))

	err := s.Load(names[0], format, []float32{2})
	assert.Error(t, err)
}

func TestRefcountRetainRelease(t *testing.T) {
	s := New()
	names, _ := s.Generate(1)
	require.NoError(t, s.Retain(names[0]))
	require.NoError(t, s.Retain(names[0]))
	assert.Equal(t, int32(2), s.Refcount(names[0]))

	s.Release(names[0])
	assert.Equal(t, int32(1), s.Refcount(names[0]))
}

func TestIsBufferRejectsUnknownAndZero(t *testing.T) {
	s := New()
	assert.False(t, s.IsBuffer(0))
	assert.False(t, s.IsBuffer(9999))
}

func TestGenerateGrowsAcrossBlocks(t *testing.T) {
	s := New()
	names, err := s.Generate(BlockSize + 5)
	require.NoError(t, err)
	assert.Len(t, names, BlockSize+5)
	for _, n := range names {
		assert.True(t, s.IsBuffer(n))
	}
}
