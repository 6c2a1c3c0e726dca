package mixer

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosoundal/goal/internal/al"
	"github.com/gosoundal/goal/internal/buffer"
	"github.com/gosoundal/goal/internal/queue"
	"github.com/gosoundal/goal/internal/source"
	"github.com/gosoundal/goal/internal/spatial"
)

func newPlayingStaticSource(t *testing.T, bufStore *buffer.Store, pos [3]float32, samples []float32) *source.Source {
	t.Helper()
	names, err := bufStore.Generate(1)
	require.NoError(t, err)
	format := al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 8000}
	require.NoError(t, bufStore.Load(names[0], format, samples))

	s := source.New(&queue.Pool{}, bufStore)
	require.NoError(t, s.SetBuffer(names[0]))
	p := s.Params()
	p.Position = pos
	p.RefDistance = 1
	p.MaxDistance = 100
	p.Rolloff = 1
	s.SetParams(p)
	s.Play()
	return s
}

func TestMixBlockProducesNonSilentOutputForPlayingSource(t *testing.T) {
	bufStore := buffer.New()
	samples := make([]float32, 64)
	for i := range samples {
		samples[i] = 1
	}
	s := newPlayingStaticSource(t, bufStore, [3]float32{0, 0, 0}, samples)

	m := New(bufStore)
	m.Inbox.Submit(s)

	accum := make([]float32, 32*2)
	in := Input{
		Listener:       spatial.Listener{Gain: 1, At: [3]float32{0, 0, -1}, Up: [3]float32{0, 1, 0}},
		Model:          al.InverseDistanceClamped,
		OutputChannels: 2,
		FrameCount:     32,
		ContextRecalc:  new(atomic.Bool),
	}
	m.MixBlock(in, accum)

	nonZero := false
	for _, v := range accum {
		if v != 0 {
			nonZero = true
			break
		}
	}
	assert.True(t, nonZero, "a playing source directly at the listener must contribute audible output")
}

func TestMixBlockStopsStaticNonLoopingSourceAtEnd(t *testing.T) {
	bufStore := buffer.New()
	samples := make([]float32, 8)
	for i := range samples {
		samples[i] = 1
	}
	s := newPlayingStaticSource(t, bufStore, [3]float32{0, 0, 0}, samples)

	m := New(bufStore)
	m.Inbox.Submit(s)

	accum := make([]float32, 32*2)
	in := Input{
		Listener:       spatial.Listener{Gain: 1, At: [3]float32{0, 0, -1}, Up: [3]float32{0, 1, 0}},
		Model:          al.InverseDistanceClamped,
		OutputChannels: 2,
		FrameCount:     32,
		ContextRecalc:  new(atomic.Bool),
	}
	m.MixBlock(in, accum)

	assert.Equal(t, al.Stopped, s.State())
	assert.False(t, s.OnPlaylist)
}

func TestMixBlockLoopsStaticSource(t *testing.T) {
	bufStore := buffer.New()
	samples := make([]float32, 8)
	for i := range samples {
		samples[i] = 1
	}
	s := newPlayingStaticSource(t, bufStore, [3]float32{0, 0, 0}, samples)
	p := s.Params()
	p.Looping = true
	s.SetParams(p)

	m := New(bufStore)
	m.Inbox.Submit(s)

	accum := make([]float32, 32*2)
	in := Input{
		Listener:       spatial.Listener{Gain: 1, At: [3]float32{0, 0, -1}, Up: [3]float32{0, 1, 0}},
		Model:          al.InverseDistanceClamped,
		OutputChannels: 2,
		FrameCount:     32,
		ContextRecalc:  new(atomic.Bool),
	}
	m.MixBlock(in, accum)

	assert.Equal(t, al.Playing, s.State(), "a looping static source must keep playing past its buffer end")
	assert.True(t, s.OnPlaylist)
}

func TestMixBlockDisconnectedStopsEverySource(t *testing.T) {
	bufStore := buffer.New()
	samples := make([]float32, 64)
	s := newPlayingStaticSource(t, bufStore, [3]float32{0, 0, 0}, samples)

	m := New(bufStore)
	m.Inbox.Submit(s)

	accum := make([]float32, 32*2)
	in := Input{
		OutputChannels: 2,
		FrameCount:     32,
		ContextRecalc:  new(atomic.Bool),
		Disconnected:   true,
	}
	m.MixBlock(in, accum)

	assert.Equal(t, al.Stopped, s.State())
	for _, v := range accum {
		assert.Equal(t, float32(0), v)
	}
}
