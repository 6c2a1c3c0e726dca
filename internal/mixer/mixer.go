// Package mixer implements the Mixer (spec.md §4.5): the device
// callback body that migrates the Context's play-request inbox into a
// mixer-private playlist, walks it, pulls resampled frames from each
// playing source, mixes them into a shared float32 accumulator via
// channel-specific kernels, and manages buffer completion (looping,
// streaming advance, natural stop) and the disconnect degenerate mode.
//
// The accumulate-then-flush shape (a shared float32 buffer filled by
// walking active sources, then handed to the output device) is
// grounded on the Go mixer implementations in the retrieved pack:
// other_examples/5538c602_EasterCompany-dex-discord-service__audio-mixer.go.go,
// other_examples/4dc3fc89_flowpbx-flowpbx__internal-media-mixer.go.go,
// other_examples/d6654491_JohnPitter-concord__internal-voice-mixer.go.go.
package mixer

import (
	"sync/atomic"

	"github.com/gosoundal/goal/internal/al"
	"github.com/gosoundal/goal/internal/buffer"
	"github.com/gosoundal/goal/internal/source"
	"github.com/gosoundal/goal/internal/spatial"
)

type requestNode struct {
	src  *source.Source
	next *requestNode
}

// Inbox is the Context's play-request inbox (spec.md §3): an
// atomically-claimed linked list of to-play nodes, appended to by API
// threads (Source.Play callers) and drained exclusively by the mixer.
type Inbox struct {
	justQueued atomic.Pointer[requestNode]
	pool       atomic.Pointer[requestNode] // Treiber free-list of nodes
}

// Submit enqueues src to be added to the playlist on the mixer's next
// pass. Safe to call from any API thread; never blocks.
func (ib *Inbox) Submit(s *source.Source) {
	node := ib.getNode()
	node.src = s
	for {
		old := ib.justQueued.Load()
		node.next = old
		if ib.justQueued.CompareAndSwap(old, node) {
			return
		}
	}
}

func (ib *Inbox) getNode() *requestNode {
	for {
		top := ib.pool.Load()
		if top == nil {
			return &requestNode{}
		}
		if ib.pool.CompareAndSwap(top, top.next) {
			top.next = nil
			return top
		}
	}
}

func (ib *Inbox) putNode(n *requestNode) {
	n.src = nil
	for {
		top := ib.pool.Load()
		n.next = top
		if ib.pool.CompareAndSwap(top, n) {
			return
		}
	}
}

// Mixer runs entirely on the device callback thread except for Inbox
// writes (Submit, called from API threads).
type Mixer struct {
	BufStore *buffer.Store
	Inbox    Inbox

	head *source.Source // playlist head; mixer-thread-private
	scratch []float32    // reused per-source pull buffer
}

// New returns a Mixer bound to a device's BufferStore.
func New(bufStore *buffer.Store) *Mixer {
	return &Mixer{BufStore: bufStore}
}

// Input bundles the per-callback context state the Mixer needs but
// does not own (spec.md §3's Context fields), read by the caller under
// whatever synchronization the Context itself uses.
type Input struct {
	Listener       spatial.Listener
	Model          al.DistanceModel
	OutputChannels int
	FrameCount     int
	ContextRecalc  *atomic.Bool
	Disconnected   bool
}

// MixBlock produces one block of FrameCount frames into accum (which
// must be sized FrameCount*OutputChannels and is zeroed here), per
// spec.md §4.5 steps 1-3. Step 4 (handing accum to the output device)
// is the caller's responsibility.
func (m *Mixer) MixBlock(in Input, accum []float32) {
	for i := range accum {
		accum[i] = 0
	}
	if cap(m.scratch) < in.FrameCount*2 {
		m.scratch = make([]float32, in.FrameCount*2)
	}

	m.drainInbox()

	if in.Disconnected {
		m.disconnectAll()
		return
	}

	forceAll := in.ContextRecalc != nil && in.ContextRecalc.CompareAndSwap(true, false)

	var prev *source.Source
	cur := m.head
	for cur != nil {
		next := cur.Next
		cur.Lock.Lock()

		if cur.State() != al.Playing {
			m.unlink(prev, cur)
			cur.OnPlaylist = false
			cur.MixerAccessible.Store(false)
			if cur.Stream != nil {
				cur.Stream.Clear()
			}
			cur.Lock.Unlock()
			cur = next
			continue
		}

		if forceAll || cur.TakeRecalc() {
			si := cur.SpatialInput()
			model := in.Model
			if ov := cur.DistanceModel(); ov != nil {
				model = *ov
			}
			out := spatial.Compute(in.Listener, spatial.SourceInput(si), model, in.OutputChannels)
			cur.Panning.Speakers = out.Speakers
			cur.Panning.Gains = out.Gains
		}

		stillPlaying := m.mixSource(cur, accum, in.OutputChannels, in.FrameCount)
		cur.Lock.Unlock()

		if !stillPlaying {
			m.unlink(prev, cur)
			cur.OnPlaylist = false
			cur.MixerAccessible.Store(false)
		} else {
			prev = cur
		}
		cur = next
	}
}

func (m *Mixer) unlink(prev, cur *source.Source) {
	if prev == nil {
		m.head = cur.Next
	} else {
		prev.Next = cur.Next
	}
	cur.Next = nil
}

// drainInbox migrates newly-submitted sources into the playlist,
// skipping ones already linked (spec.md §4.5 step 2).
func (m *Mixer) drainInbox() {
	claimed := m.Inbox.justQueued.Swap(nil)
	// Reverse the claimed (LIFO) chain so sources are linked in
	// submission order, then process oldest-first.
	var ordered []*requestNode
	for n := claimed; n != nil; n = n.next {
		ordered = append(ordered, n)
	}
	for i := len(ordered) - 1; i >= 0; i-- {
		node := ordered[i]
		src := node.src
		if !src.OnPlaylist {
			src.Lock.Lock()
			src.SeedStream()
			src.Lock.Unlock()
			src.OnPlaylist = true
			src.Next = m.head
			m.head = src
		}
		m.Inbox.putNode(node)
	}
}

// mixSource pulls resampled frames from cur's stream into m.scratch,
// mixes them into accum via the matching kernel, and handles buffer
// completion (spec.md §4.5 step 3c). Caller holds cur.Lock. Returns
// false if the source should be removed from the playlist (stopped).
func (m *Mixer) mixSource(cur *source.Source, accum []float32, outChannels, frameCount int) bool {
	// When both pan gains are 0 the source contributes nothing audible,
	// but offset/buffer-completion bookkeeping still has to advance, so
	// frames are still pulled below and simply never handed to a kernel.
	format, ok := cur.CurrentFormat()
	if !ok || cur.Stream == nil {
		cur.StopLocked()
		return false
	}

	remaining := frameCount
	written := 0
	for remaining > 0 {
		n := remaining
		if n > frameCount {
			n = frameCount
		}
		need := n * format.Channels
		if need > len(m.scratch) {
			need = len(m.scratch)
			n = need / format.Channels
		}
		got, consumedBytes := cur.Stream.Pull(m.scratch[:need], format.Channels)
		if got > 0 {
			cur.SetOffsetBytes(cur.OffsetBytes() + int64(consumedBytes))
			if !(cur.Panning.Gains[0] == 0 && cur.Panning.Gains[1] == 0) {
				dst := accum[written*outChannels : (written+got)*outChannels]
				mixInto(dst, m.scratch[:got*format.Channels], format.Channels, outChannels, cur.Panning)
			}
			written += got
			remaining -= got
		}
		if got == 0 || cur.Stream.AvailableOutputFrames() == 0 {
			if !m.handleBufferCompletion(cur, format) {
				return cur.State() == al.Playing
			}
			format, ok = cur.CurrentFormat()
			if !ok {
				return false
			}
			if got == 0 && cur.Stream.AvailableOutputFrames() == 0 {
				// Nothing more to produce this pass even after
				// advancing; avoid spinning.
				break
			}
		}
	}
	return true
}

// handleBufferCompletion implements spec.md §4.5 step 3c's three
// branches. Returns true if mixing should continue with a freshly
// seeded stream, false if the source was stopped (and the caller
// should treat this pass as done for this source).
func (m *Mixer) handleBufferCompletion(cur *source.Source, format al.Format) bool {
	switch cur.Type() {
	case al.Static:
		if cur.LoopingLocked() {
			cur.SetOffsetBytes(0)
			cur.SeedStream()
			return true
		}
		cur.StopLocked()
		return false
	case al.Streaming:
		if cur.AdvancePendingToProcessed() {
			cur.SeedStream()
			return true
		}
		// Pending queue drained. If looping, requeue the whole
		// processed chain (decided semantics, see DESIGN.md).
		if cur.LoopingLocked() && cur.RequeueProcessedAsPending() {
			cur.SeedStream()
			return true
		}
		cur.StopLocked()
		return false
	default:
		cur.StopLocked()
		return false
	}
}

// mixInto dispatches to the matching kernel for (srcChannels,
// outChannels) (spec.md §4.5 kernel dispatch table).
func mixInto(accum, scratch []float32, srcChannels, outChannels int, pan source.Panning) {
	switch {
	case srcChannels == 1 && outChannels == 1:
		monoToMono(accum, scratch, pan.Gains[0])
	case srcChannels == 1 && outChannels == 2:
		monoToStereo(accum, scratch, pan.Gains[0], pan.Gains[1])
	case srcChannels == 2 && outChannels == 1:
		stereoToMono(accum, scratch, pan.Gains[0])
	case srcChannels == 2 && outChannels == 2:
		stereoToStereo(accum, scratch, pan.Gains[0], pan.Gains[1])
	case srcChannels == 1:
		monoToSurround(accum, scratch, outChannels, pan.Speakers, pan.Gains)
	case srcChannels == 2:
		stereoToSurround(accum, scratch, outChannels, pan.Speakers, pan.Gains)
	}
}

// disconnectAll implements spec.md §4.5's disconnect model: every
// playing source is stopped, its pending buffers are all marked
// processed, and it is unlinked from the playlist.
func (m *Mixer) disconnectAll() {
	var prev *source.Source
	cur := m.head
	for cur != nil {
		next := cur.Next
		cur.Lock.Lock()
		if cur.State() == al.Playing || cur.State() == al.Paused {
			cur.MoveAllPendingToProcessedLocked()
			cur.StopLocked()
		}
		cur.Lock.Unlock()
		m.unlink(prev, cur)
		cur.OnPlaylist = false
		cur.MixerAccessible.Store(false)
		cur = next
	}
}
