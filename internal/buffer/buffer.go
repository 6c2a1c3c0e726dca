// Package buffer implements BufferStore (spec.md §4.1): the owner of
// every decoded clip's immutable PCM payload and its reference count.
//
// Buffers are allocated in fixed-size blocks that live as long as the
// device, the way a pre-allocated fixed chunk pool avoids growing
// per-call; here the block grows the *pool*, not a ring, and block
// pointers are immutable once appended.
package buffer

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gosoundal/goal/internal/al"
)

// BlockSize is the number of buffer slots per allocated block.
const BlockSize = 256

type slot struct {
	allocated bool
	format    al.Format
	payload   []float32 // SIMD-aligned logical payload; see Load().
	refcount  atomic.Int32
	generation uint32
}

// Store owns every buffer slot for one device.
type Store struct {
	mu     sync.Mutex
	blocks [][]slot
}

// New returns an empty buffer store.
func New() *Store {
	return &Store{}
}

func (s *Store) slotFor(n al.Name) *slot {
	idx := int(n) - 1
	block := idx / BlockSize
	within := idx % BlockSize
	if block >= len(s.blocks) {
		return nil
	}
	return &s.blocks[block][within]
}

func (s *Store) grow() {
	s.blocks = append(s.blocks, make([]slot, BlockSize))
}

// Generate atomically claims n free slots, allocating new blocks as
// needed. On failure to find n free slots (which cannot actually
// happen short of an allocation failure, since blocks always grow),
// it releases nothing because nothing was claimed: all n slots are
// claimed before any name is returned, so a panic mid-claim (the only
// realistic OOM: `make` in grow()) never requires an undo.
func (s *Store) Generate(n int) ([]al.Name, error) {
	if n < 0 {
		return nil, al.Err(al.InvalidValue)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]al.Name, 0, n)
	for i := 0; i < len(s.blocks) && len(names) < n; i++ {
		for j := range s.blocks[i] {
			if len(names) >= n {
				break
			}
			sl := &s.blocks[i][j]
			if !sl.allocated {
				sl.allocated = true
				sl.generation++
				names = append(names, al.Name(i*BlockSize+j+1))
			}
		}
	}
	for len(names) < n {
		s.grow()
		block := &s.blocks[len(s.blocks)-1]
		base := (len(s.blocks) - 1) * BlockSize
		for j := range *block {
			if len(names) >= n {
				break
			}
			(*block)[j].allocated = true
			(*block)[j].generation++
			names = append(names, al.Name(base+j+1))
		}
	}
	return names, nil
}

// IsBuffer reports whether name refers to a currently allocated buffer.
func (s *Store) IsBuffer(name al.Name) bool {
	if name == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := s.slotFor(name)
	return sl != nil && sl.allocated
}

// Delete frees names, first validating that every name exists and has
// a zero refcount; on any failure nothing is deleted (spec.md §4.1).
func (s *Store) Delete(names []al.Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range names {
		sl := s.slotFor(n)
		if sl == nil || !sl.allocated {
			return al.Err(al.InvalidName)
		}
		if sl.refcount.Load() != 0 {
			return al.Err(al.InvalidOperation)
		}
	}
	for _, n := range names {
		sl := s.slotFor(n)
		sl.allocated = false
		sl.payload = nil
		sl.format = al.Format{}
	}
	return nil
}

// Load copies samples into name's payload, only permitted while
// refcount is zero. samples are interleaved float32 frames; they are
// copied into a newly allocated, 16-byte-aligned payload, so the
// caller may reuse its slice afterward.
func (s *Store) Load(name al.Name, format al.Format, samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := s.slotFor(name)
	if sl == nil || !sl.allocated {
		return al.Err(al.InvalidName)
	}
	if format.Channels != 1 && format.Channels != 2 {
		return al.Err(al.InvalidValue)
	}
	if sl.refcount.Load() != 0 {
		return al.Err(al.InvalidOperation)
	}
	// Over-allocate by three float32s and start the payload at the first
	// 16-byte-aligned element.
	buf := make([]float32, len(samples)+3)
	off := 0
	for off < 3 && uintptr(unsafe.Pointer(&buf[off]))%16 != 0 {
		off++
	}
	payload := buf[off : off+len(samples)]
	copy(payload, samples)
	sl.payload = payload
	sl.format = format
	return nil
}

// Format returns the format of name, or an error if it's not a valid
// buffer.
func (s *Store) Format(name al.Name) (al.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := s.slotFor(name)
	if sl == nil || !sl.allocated {
		return al.Format{}, al.Err(al.InvalidName)
	}
	return sl.format, nil
}

// Payload returns the payload slice for name. The returned slice must
// not be mutated; it is safe to read concurrently with Load only
// because Load is only permitted at refcount==0, i.e. while no reader
// holds a binding (spec.md §4.1 guarantee).
func (s *Store) Payload(name al.Name) ([]float32, al.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := s.slotFor(name)
	if sl == nil || !sl.allocated {
		return nil, al.Format{}, al.Err(al.InvalidName)
	}
	return sl.payload, sl.format, nil
}

// Retain increments name's refcount, binding it to one more source.
func (s *Store) Retain(name al.Name) error {
	if name == 0 {
		return nil
	}
	s.mu.Lock()
	sl := s.slotFor(name)
	s.mu.Unlock()
	if sl == nil || !sl.allocated {
		return al.Err(al.InvalidName)
	}
	sl.refcount.Add(1)
	return nil
}

// Release decrements name's refcount.
func (s *Store) Release(name al.Name) {
	if name == 0 {
		return
	}
	s.mu.Lock()
	sl := s.slotFor(name)
	s.mu.Unlock()
	if sl == nil {
		return
	}
	sl.refcount.Add(-1)
}

// Refcount returns the current reference count of name, for tests and
// diagnostics (spec.md §8 invariant).
func (s *Store) Refcount(name al.Name) int32 {
	s.mu.Lock()
	sl := s.slotFor(name)
	s.mu.Unlock()
	if sl == nil {
		return 0
	}
	return sl.refcount.Load()
}
