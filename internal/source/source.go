// Package source implements Source (spec.md §4.3): a playable emitter
// with a state machine, a bound buffer or buffer queues, spatial
// parameters, and the atomic/mutex discipline that lets the mixer
// thread and API threads touch it concurrently.
//
// The mixed atomic-field-plus-mutex-body shape keeps a fast
// atomic.Bool beside a sync.Mutex-guarded body for the same reason in
// each case: a hot-path reader must not block on a slow-path writer's
// lock.
package source

import (
	"sync"
	"sync/atomic"

	"github.com/gosoundal/goal/internal/al"
	"github.com/gosoundal/goal/internal/buffer"
	"github.com/gosoundal/goal/internal/queue"
	"github.com/gosoundal/goal/internal/stream"
)

// Params holds the scalar/vector spatial and gain parameters a Source
// carries (spec.md §3). Reads/writes to Params go through Source's
// methods so the recalc flag and memory fence discipline is honored;
// Params itself is a plain value type copied under lock.
type Params struct {
	Position    [3]float32
	Velocity    [3]float32
	Direction   [3]float32
	Gain        float32
	MinGain     float32
	MaxGain     float32
	RefDistance float32
	MaxDistance float32
	Rolloff     float32
	Pitch       float32
	ConeInner   float32 // degrees
	ConeOuter   float32 // degrees
	ConeOuterGain float32
	SourceRelative bool
	Looping     bool

	// DistanceModelOverride, when non-nil, overrides the context's
	// default distance model for this source (supplemented feature,
	// see SPEC_FULL.md).
	DistanceModelOverride *al.DistanceModel
}

// DefaultParams returns the AL-spec default parameter set for a newly
// generated source.
func DefaultParams() Params {
	return Params{
		Gain:          1,
		MinGain:       0,
		MaxGain:       1,
		RefDistance:   1,
		MaxDistance:   float32(3.4e38),
		Rolloff:       1,
		Pitch:         1,
		ConeInner:     360,
		ConeOuter:     360,
		ConeOuterGain: 0,
		Direction:     [3]float32{0, 0, 0},
	}
}

// Panning is the Spatialiser's cached output (spec.md §4.4).
type Panning struct {
	Speakers [2]int
	Gains    [2]float32
}

// Source is one playable emitter. Exported fields are accessed by the
// mixer package, which lives in the same module and is the one
// collaborator allowed to reach past the API surface for performance;
// all application-facing mutation goes through the methods below,
// which take Lock when MixerAccessible is set, per spec.md §4.3.
type Source struct {
	Name al.Name

	// state is read by the mixer without the lock, written by the API
	// under the lock (spec.md §4.3 atomicity requirement).
	state atomic.Int32 // al.SourceState

	// MixerAccessible is set true by Play and cleared by the mixer
	// when it unlinks the source from the playlist.
	MixerAccessible atomic.Bool

	// Recalc is set (with a release fence, via SetRecalc) whenever a
	// parameter write needs the Spatialiser to refresh Panning before
	// the next mix, and cleared (with an acquire fence) by the mixer.
	recalc atomic.Bool

	typ al.SourceType

	Lock sync.Mutex // doubles as the resampling stream's lock, per spec.md §5

	params Params

	boundBuffer al.Name
	pending     queue.Queue
	processed   queue.Queue
	pool        *queue.Pool

	bufStore *buffer.Store

	Stream stream.Stream

	// offsetBytes is the pre-resampling byte offset into the current
	// buffer (STATIC) or current pending-queue head (STREAMING),
	// per spec.md §9's decided BYTE_OFFSET convention.
	offsetBytes int64

	// latchedOffset/hasLatchedOffset implement "offset latched for
	// next Play" (spec.md §3): set by SetOffset while not PLAYING,
	// consumed by Play.
	latchedOffset    int64
	hasLatchedOffset bool

	Panning Panning

	// Next links this source into the mixer's private playlist
	// (spec.md §3); touched only by the mixer thread.
	Next *Source

	// OnPlaylist is mixer-private bookkeeping: true while this source
	// is linked into the Mixer's playlist, so a duplicate Play-request
	// inbox entry (e.g. the application calls Play twice before the
	// mixer's next pass) doesn't link it in twice (spec.md §4.5 step 2).
	OnPlaylist bool
}

// New creates a Source in its INITIAL/UNDETERMINED defaults (see
// Reset); the Context's source-block allocator calls it when it needs
// a fresh slot.
func New(pool *queue.Pool, bufStore *buffer.Store) *Source {
	s := &Source{pool: pool, bufStore: bufStore}
	s.Reset()
	return s
}

// Reset restores a deleted-and-reused slot to INITIAL/UNDETERMINED
// defaults. Called by the allocator under the API mutex, never while
// MixerAccessible.
func (s *Source) Reset() {
	s.state.Store(int32(al.Initial))
	s.MixerAccessible.Store(false)
	s.recalc.Store(false)
	s.typ = al.Undetermined
	s.params = DefaultParams()
	s.boundBuffer = 0
	s.offsetBytes = 0
	s.hasLatchedOffset = false
	s.Panning = Panning{Speakers: [2]int{0, 1}}
	s.Stream = nil
	s.Next = nil
}

// State returns the current lifecycle state. Safe to call from the
// mixer without the lock.
func (s *Source) State() al.SourceState { return al.SourceState(s.state.Load()) }

func (s *Source) setState(v al.SourceState) { s.state.Store(int32(v)) }

// Type reports STATIC/STREAMING/UNDETERMINED.
func (s *Source) Type() al.SourceType { return s.typ }

// SetRecalc sets the per-source recalc flag with the release fence the
// spec requires so a concurrent parameter write becomes visible before
// the mixer observes the flag (spec.md §4.4).
func (s *Source) SetRecalc() { s.recalc.Store(true) }

// TakeRecalc clears the flag with an acquire-style read-then-clear and
// reports whether it was set, for the mixer's per-pass check.
func (s *Source) TakeRecalc() bool {
	return s.recalc.CompareAndSwap(true, false)
}

// Params returns a copy of the current parameters under lock.
func (s *Source) Params() Params {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	return s.params
}

// withLock runs fn with the source lock held. It takes the lock
// unconditionally, whether or not the mixer can currently observe this
// source (spec.md §4.3 only requires it when mixer_accessible=1).
// Operations that are only ever legal while the source is NOT
// mixer-accessible (e.g. SetBuffer) don't need it, but taking it
// always is cheap (uncontended fast path) and removes a class of
// "forgot to lock" bugs.
func (s *Source) withLock(fn func()) {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	fn()
}

// SetParams replaces the full parameter block and marks recalc.
// Individual setters are the clerical `alSourcef/fv/i` family spec.md
// §1 excludes from the hard core and this module does not provide;
// callers needing single-field sets read Params(), mutate, and call
// SetParams.
func (s *Source) SetParams(p Params) {
	s.withLock(func() {
		s.params = p
	})
	s.SetRecalc()
}

// SetBuffer binds name as this source's STATIC buffer. Permitted only
// in INITIAL or STOPPED (spec.md §4.3).
func (s *Source) SetBuffer(name al.Name) error {
	st := s.State()
	if st != al.Initial && st != al.Stopped {
		return al.Err(al.InvalidOperation)
	}
	if name != 0 && !s.bufStore.IsBuffer(name) {
		return al.Err(al.InvalidName)
	}
	s.withLock(func() {
		if name != 0 {
			s.bufStore.Retain(name)
		}
		if s.boundBuffer != 0 {
			s.bufStore.Release(s.boundBuffer)
		}
		s.boundBuffer = name
		if name == 0 {
			s.typ = al.Undetermined
		} else {
			s.typ = al.Static
		}
		// Clear any pending queue (a source can only be STATIC or
		// STREAMING, never both).
		for _, it := range s.pending.DrainAll() {
			s.bufStore.Release(al.Name(it.BufferName))
			s.pool.Put(it)
		}
		for _, it := range s.processed.DrainAll() {
			s.bufStore.Release(al.Name(it.BufferName))
			s.pool.Put(it)
		}
		s.offsetBytes = 0
		s.hasLatchedOffset = false
	})
	return nil
}

// Buffer returns the currently bound STATIC buffer, or 0.
func (s *Source) Buffer() al.Name {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	return s.boundBuffer
}

// QueueBuffers appends names to the pending queue. Permitted only on
// non-STATIC sources; all buffers (new and already-queued) must share
// channel count and sample rate (spec.md §4.3).
func (s *Source) QueueBuffers(names []al.Name) error {
	if s.typ == al.Static {
		return al.Err(al.InvalidOperation)
	}
	if len(names) == 0 {
		return nil
	}

	var refChannels, refRate int
	s.Lock.Lock()
	s.pending.Drain()
	if s.pending.Front() != nil {
		refChannels = s.pending.Front().Channels
		refRate = s.pending.Front().SampleRate
	}
	s.Lock.Unlock()

	items := make([]*queue.Item, 0, len(names))
	retained := make([]al.Name, 0, len(names))
	for _, n := range names {
		format, err := s.bufStore.Format(n)
		if err != nil {
			// Roll back refcounts bumped so far for this call
			// (spec.md §8: "buffer refcounts for any earlier-processed
			// names in the list are decremented again so nothing is
			// leaked").
			for _, r := range retained {
				s.bufStore.Release(r)
			}
			return err
		}
		if refChannels == 0 {
			refChannels, refRate = format.Channels, format.SampleRate
		} else if format.Channels != refChannels || format.SampleRate != refRate {
			for _, r := range retained {
				s.bufStore.Release(r)
			}
			return al.Err(al.InvalidValue)
		}
		s.bufStore.Retain(n)
		retained = append(retained, n)
		payload, _, _ := s.bufStore.Payload(n)
		it := s.pool.Get()
		it.BufferName = uint32(n)
		it.Channels = format.Channels
		it.SampleRate = format.SampleRate
		it.PayloadBytes = len(payload) * 4
		items = append(items, it)
	}

	s.Lock.Lock()
	s.pending.Append(items)
	s.typ = al.Streaming
	s.Lock.Unlock()
	return nil
}

// UnqueueBuffers removes the first n processed nodes in FIFO order,
// returning their buffer names and releasing their refcounts. Fails
// INVALID_VALUE if fewer than n are available, leaving the queue
// untouched (spec.md §4.3, §8 boundary behaviour).
func (s *Source) UnqueueBuffers(n int) ([]al.Name, error) {
	if s.typ == al.Static {
		return nil, al.Err(al.InvalidOperation)
	}
	if n < 0 {
		return nil, al.Err(al.InvalidValue)
	}
	s.Lock.Lock()
	defer s.Lock.Unlock()
	s.processed.Drain()
	if s.processed.Len() < n {
		return nil, al.Err(al.InvalidValue)
	}
	out := make([]al.Name, 0, n)
	for i := 0; i < n; i++ {
		it := s.processed.PopFront()
		name := al.Name(it.BufferName)
		out = append(out, name)
		s.bufStore.Release(name)
		s.pool.Put(it)
	}
	return out, nil
}

// BuffersQueued returns pending+processed+in-flight item count
// (spec.md §8 invariant).
func (s *Source) BuffersQueued() int {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	s.pending.Drain()
	s.processed.Drain()
	return s.pending.Len() + s.processed.Len()
}

// BuffersProcessed returns the processed-queue length.
func (s *Source) BuffersProcessed() int {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	s.processed.Drain()
	return s.processed.Len()
}

// Pending/Processed expose the two queues to the mixer package, which
// lives in the same module.
func (s *Source) Pending() *queue.Queue   { return &s.pending }
func (s *Source) Processed() *queue.Queue { return &s.processed }
func (s *Source) Pool() *queue.Pool       { return s.pool }

// Play transitions INITIAL/STOPPED/PAUSED -> PLAYING (spec.md §4.3
// state machine) and marks the source visible to the mixer. The
// Context is responsible for enqueuing the source on the play-request
// inbox after this returns successfully.
func (s *Source) Play() {
	s.withLock(func() {
		switch s.State() {
		case al.Initial, al.Stopped:
			s.offsetBytes = 0
			if s.hasLatchedOffset {
				s.offsetBytes = s.latchedOffset
				s.hasLatchedOffset = false
			}
		case al.Paused:
			// offset preserved
		case al.Playing:
			// Replaying an already-playing source restarts it from
			// offset 0 per the AL convention (re-Play == rewind+play).
			s.offsetBytes = 0
			s.SeedStream()
		}
		s.setState(al.Playing)
	})
	s.MixerAccessible.Store(true)
}

// Pause transitions PLAYING -> PAUSED.
func (s *Source) Pause() {
	s.withLock(func() {
		if s.State() == al.Playing {
			s.setState(al.Paused)
		}
	})
}

// Stop transitions PLAYING/PAUSED -> STOPPED, moving all pending
// buffers to processed (spec.md §4.3).
func (s *Source) Stop() {
	s.withLock(func() {
		st := s.State()
		if st == al.Playing || st == al.Paused {
			s.moveAllPendingToProcessedLocked()
			s.setState(al.Stopped)
			if s.Stream != nil {
				s.Stream.Clear()
			}
		}
	})
}

// Rewind transitions any state -> INITIAL, offset reset to 0.
func (s *Source) Rewind() {
	s.withLock(func() {
		s.setState(al.Initial)
		s.offsetBytes = 0
		s.hasLatchedOffset = false
		if s.Stream != nil {
			s.Stream.Clear()
		}
	})
}

// moveAllPendingToProcessedLocked is called with s.Lock held.
func (s *Source) moveAllPendingToProcessedLocked() {
	items := s.pending.DrainAll()
	if len(items) == 0 {
		return
	}
	s.processed.Append(items)
}

// MoveAllPendingToProcessed is the exported form for callers that do
// not already hold the lock; it takes s.Lock itself. (The mixer's
// disconnect path uses MoveAllPendingToProcessedLocked instead.)
func (s *Source) MoveAllPendingToProcessed() {
	s.withLock(s.moveAllPendingToProcessedLocked)
}

// MoveAllPendingToProcessedLocked is MoveAllPendingToProcessed without
// taking s.Lock. Caller must hold s.Lock (the mixer calls this from
// disconnectAll, which already holds the source's lock per source).
func (s *Source) MoveAllPendingToProcessedLocked() {
	s.moveAllPendingToProcessedLocked()
}

// SetOffset applies kind/value either immediately (if PLAYING, by
// clearing and reseeding the resampling stream) or latches it for the
// next Play (spec.md §4.3).
func (s *Source) SetOffset(kind al.OffsetKind, value float64, format al.Format) error {
	bytesVal, err := offsetToBytes(kind, value, format)
	if err != nil {
		return err
	}
	s.withLock(func() {
		if s.State() == al.Playing {
			s.offsetBytes = bytesVal
			if s.Stream != nil {
				s.SeedStream()
			}
		} else {
			s.latchedOffset = bytesVal
			s.hasLatchedOffset = true
		}
	})
	return nil
}

// GetOffset reports the current offset in the requested unit. For
// STREAMING sources this is "bytes mixed in the currently playing
// buffer plus full-length bytes of all processed buffers in the
// processed queue" (spec.md §4.3), converted to kind.
func (s *Source) GetOffset(kind al.OffsetKind, format al.Format) float64 {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	total := s.offsetBytes
	if s.typ == al.Streaming {
		s.processed.Drain()
		// Walk the consumer-private processed chain by popping and
		// re-pushing a snapshot; simplest correct approach given the
		// queue package's minimal walk API.
		var snapshot []*queue.Item
		for it := s.processed.PopFront(); it != nil; it = s.processed.PopFront() {
			total += int64(it.PayloadBytes)
			snapshot = append(snapshot, it)
		}
		for _, it := range snapshot {
			s.processed.PushBack(it)
		}
	}
	return bytesToOffset(kind, total, format)
}

// OffsetBytes returns the raw pre-resampling byte offset, for the
// mixer's own bookkeeping.
func (s *Source) OffsetBytes() int64 {
	return s.offsetBytes
}

// CurrentFormat reports the format of whichever buffer the mixer
// should currently be reading from: the bound buffer for STATIC, or
// the pending queue's head for STREAMING. Caller must hold s.Lock.
func (s *Source) CurrentFormat() (al.Format, bool) {
	if s.typ == al.Static {
		if s.boundBuffer == 0 {
			return al.Format{}, false
		}
		f, err := s.bufStore.Format(s.boundBuffer)
		return f, err == nil
	}
	s.pending.Drain()
	it := s.pending.Front()
	if it == nil {
		return al.Format{}, false
	}
	return al.Format{Channels: it.Channels, SampleRate: it.SampleRate}, true
}

// currentPayload returns the PCM payload of whichever buffer is
// currently active. Caller must hold s.Lock.
func (s *Source) currentPayload() []float32 {
	if s.typ == al.Static {
		payload, _, err := s.bufStore.Payload(s.boundBuffer)
		if err != nil {
			return nil
		}
		return payload
	}
	it := s.pending.Front()
	if it == nil {
		return nil
	}
	payload, _, err := s.bufStore.Payload(al.Name(it.BufferName))
	if err != nil {
		return nil
	}
	return payload
}

// SeedStream (re)builds the resampling stream for whichever buffer is
// currently active, starting from offsetBytes (0 unless a latched/
// applied offset moved it). Caller must hold s.Lock.
func (s *Source) SeedStream() {
	format, ok := s.CurrentFormat()
	if !ok {
		s.Stream = nil
		return
	}
	s.Stream = stream.New(format)
	payload := s.currentPayload()
	frameSize := format.FrameSize()
	skipSamples := 0
	if frameSize > 0 {
		skipFrames := int(s.offsetBytes) / frameSize
		skipSamples = skipFrames * format.Channels
	}
	if skipSamples < 0 {
		skipSamples = 0
	}
	if skipSamples < len(payload) {
		s.Stream.Push(payload[skipSamples:], format.Channels)
	}
}

// AdvancePendingToProcessed moves the current pending head (a
// STREAMING source's just-finished buffer) onto the processed queue,
// and reports whether a new pending head is now available. Caller
// must hold s.Lock.
func (s *Source) AdvancePendingToProcessed() bool {
	it := s.pending.PopFront()
	if it == nil {
		return false
	}
	s.processed.Append([]*queue.Item{it})
	s.offsetBytes = 0
	s.pending.Drain()
	return s.pending.Front() != nil
}

// RequeueProcessedAsPending moves the entire processed queue back onto
// pending, in original order (the decided STREAMING-looping semantics,
// see DESIGN.md Open Questions). Caller must hold s.Lock.
func (s *Source) RequeueProcessedAsPending() bool {
	items := s.processed.DrainAll()
	if len(items) == 0 {
		return false
	}
	s.pending.Append(items)
	return true
}

// Looping reports the source's looping flag.
func (s *Source) Looping() bool {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	return s.params.Looping
}

// LoopingLocked is Looping without taking s.Lock. Caller must hold
// s.Lock (the mixer calls this from inside handleBufferCompletion,
// which already holds the source's lock for the whole mix pass).
func (s *Source) LoopingLocked() bool {
	return s.params.Looping
}

// StopLocked transitions the source to STOPPED and clears its stream.
// Used by the mixer when it observes end-of-data on a non-looping
// source, or device disconnect (spec.md §4.5). Caller must hold
// s.Lock and is responsible for unlinking the source from the
// playlist and clearing MixerAccessible.
func (s *Source) StopLocked() {
	s.setState(al.Stopped)
	if s.Stream != nil {
		s.Stream.Clear()
	}
}

// SpatialInput is the subset of a source's parameters the Spatialiser
// needs, field-compatible with spatial.SourceInput so the mixer can
// convert with a plain struct literal.
type SpatialInput struct {
	Position       [3]float32
	SourceRelative bool
	Gain           float32
	MinGain        float32
	MaxGain        float32
	RefDistance    float32
	MaxDistance    float32
	Rolloff        float32
	ConeInner      float32
	ConeOuter      float32
	ConeOuterGain  float32
	Direction      [3]float32
	Channels       int
}

// SpatialInput copies the fields the Spatialiser needs out of the
// source's parameters and current format. Caller must hold s.Lock.
func (s *Source) SpatialInput() SpatialInput {
	format, _ := s.CurrentFormat()
	p := s.params
	return SpatialInput{
		Position:       p.Position,
		SourceRelative: p.SourceRelative,
		Gain:           p.Gain,
		MinGain:        p.MinGain,
		MaxGain:        p.MaxGain,
		RefDistance:    p.RefDistance,
		MaxDistance:    p.MaxDistance,
		Rolloff:        p.Rolloff,
		ConeInner:      p.ConeInner,
		ConeOuter:      p.ConeOuter,
		ConeOuterGain:  p.ConeOuterGain,
		Direction:      p.Direction,
		Channels:       format.Channels,
	}
}

// DistanceModel returns the source's distance-model override, if any.
func (s *Source) DistanceModel() *al.DistanceModel {
	return s.params.DistanceModelOverride
}

// SetOffsetBytes is used by the mixer to update the tracked offset as
// it consumes stream input.
func (s *Source) SetOffsetBytes(v int64) {
	s.offsetBytes = v
}

func offsetToBytes(kind al.OffsetKind, value float64, format al.Format) (int64, error) {
	if value < 0 {
		return 0, al.Err(al.InvalidValue)
	}
	frameSize := int64(format.FrameSize())
	switch kind {
	case al.OffsetBytes:
		return int64(value), nil
	case al.OffsetSamples:
		return int64(value) * frameSize, nil
	case al.OffsetSeconds:
		return int64(value*float64(format.SampleRate)) * frameSize, nil
	default:
		return 0, al.Err(al.InvalidEnum)
	}
}

func bytesToOffset(kind al.OffsetKind, bytesVal int64, format al.Format) float64 {
	frameSize := format.FrameSize()
	if frameSize == 0 {
		return 0
	}
	frames := float64(bytesVal / int64(frameSize))
	switch kind {
	case al.OffsetBytes:
		return float64(bytesVal)
	case al.OffsetSamples:
		return frames
	case al.OffsetSeconds:
		if format.SampleRate == 0 {
			return 0
		}
		return frames / float64(format.SampleRate)
	default:
		return 0
	}
}
