package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosoundal/goal/internal/al"
	"github.com/gosoundal/goal/internal/buffer"
	"github.com/gosoundal/goal/internal/queue"
)

func newTestSource(t *testing.T) (*Source, *buffer.Store) {
	t.Helper()
	bufStore := buffer.New()
	pool := &queue.Pool{}
	return New(pool, bufStore), bufStore
}

func TestNewSourceStartsInitial(t *testing.T) {
	s, _ := newTestSource(t)
	assert.Equal(t, al.Initial, s.State())
	assert.Equal(t, al.Undetermined, s.Type())
}

func TestPlayPauseStopRewind(t *testing.T) {
	s, _ := newTestSource(t)

	s.Play()
	assert.Equal(t, al.Playing, s.State())
	assert.True(t, s.MixerAccessible.Load())

	s.Pause()
	assert.Equal(t, al.Paused, s.State())

	s.Stop()
	assert.Equal(t, al.Stopped, s.State())

	s.Rewind()
	assert.Equal(t, al.Initial, s.State())
}

func TestSetBufferBindsStaticType(t *testing.T) {
	s, bufStore := newTestSource(t)
	names, _ := bufStore.Generate(1)
	require.NoError(t, bufStore.Load(names[0], al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 8000}, []float32{0, 1}))

	require.NoError(t, s.SetBuffer(names[0]))
	assert.Equal(t, al.Static, s.Type())
	assert.Equal(t, names[0], s.Buffer())
	assert.Equal(t, int32(1), bufStore.Refcount(names[0]))
}

func TestSetBufferRejectedWhilePlaying(t *testing.T) {
	s, bufStore := newTestSource(t)
	names, _ := bufStore.Generate(1)
	require.NoError(t, bufStore.Load(names[0], al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 8000}, []float32{0}))
	require.NoError(t, s.SetBuffer(names[0]))
	s.Play()

	err := s.SetBuffer(0)
	assert.Error(t, err)
}

func TestQueueBuffersRejectsMismatchedFormat(t *testing.T) {
	s, bufStore := newTestSource(t)
	names, _ := bufStore.Generate(2)
	require.NoError(t, bufStore.Load(names[0], al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 8000}, []float32{0}))
	require.NoError(t, bufStore.Load(names[1], al.Format{Channels: 2, Encoding: al.Float32, SampleRate: 8000}, []float32{0, 0}))

	require.NoError(t, s.QueueBuffers([]al.Name{names[0]}))
	err := s.QueueBuffers([]al.Name{names[1]})
	assert.Error(t, err)
	assert.Equal(t, int32(0), bufStore.Refcount(names[1]), "a rejected queue call must roll back the refcount bump")
}

func TestQueueAndUnqueueBuffers(t *testing.T) {
	s, bufStore := newTestSource(t)
	names, _ := bufStore.Generate(2)
	for _, n := range names {
		require.NoError(t, bufStore.Load(n, al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 8000}, []float32{0, 1, 2, 3}))
	}
	require.NoError(t, s.QueueBuffers(names))
	assert.Equal(t, al.Streaming, s.Type())
	assert.Equal(t, 2, s.BuffersQueued())
	assert.Equal(t, 0, s.BuffersProcessed())

	assert.True(t, s.AdvancePendingToProcessed())
	assert.Equal(t, 1, s.BuffersProcessed())

	out, err := s.UnqueueBuffers(1)
	require.NoError(t, err)
	assert.Equal(t, names[0], out[0])
	assert.Equal(t, int32(0), bufStore.Refcount(names[0]))
}

func TestUnqueueMoreThanProcessedFails(t *testing.T) {
	s, bufStore := newTestSource(t)
	names, _ := bufStore.Generate(1)
	require.NoError(t, bufStore.Load(names[0], al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 8000}, []float32{0}))
	require.NoError(t, s.QueueBuffers(names))

	_, err := s.UnqueueBuffers(1)
	assert.Error(t, err, "nothing has moved to processed yet")
}

func TestSetOffsetLatchesWhenNotPlaying(t *testing.T) {
	s, bufStore := newTestSource(t)
	names, _ := bufStore.Generate(1)
	format := al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 1000}
	require.NoError(t, bufStore.Load(names[0], format, make([]float32, 1000)))
	require.NoError(t, s.SetBuffer(names[0]))

	require.NoError(t, s.SetOffset(al.OffsetSeconds, 0.5, format))
	assert.Equal(t, int64(0), s.OffsetBytes(), "offset applies at next Play, not immediately")

	s.Play()
	assert.Equal(t, int64(0.5*1000)*4, s.OffsetBytes())
}

func TestSeedStreamSkipsToOffset(t *testing.T) {
	s, bufStore := newTestSource(t)
	names, _ := bufStore.Generate(1)
	format := al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 1000}
	samples := make([]float32, 10)
	for i := range samples {
		samples[i] = float32(i)
	}
	require.NoError(t, bufStore.Load(names[0], format, samples))
	require.NoError(t, s.SetBuffer(names[0]))

	s.Lock.Lock()
	s.SetOffsetBytes(4 * 4) // skip 4 frames at 4 bytes/frame
	s.SeedStream()
	available := s.Stream.AvailableOutputFrames()
	s.Lock.Unlock()

	assert.Equal(t, len(samples)-4, available, "seeding at an offset must only push the remaining payload")
}
