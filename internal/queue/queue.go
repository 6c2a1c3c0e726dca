// Package queue implements the single-producer/single-consumer buffer
// queue handoff used twice per streaming source (pending, processed),
// and the device-level free-list pool that backs its nodes.
//
// The atomics discipline mirrors a lock-free ring buffer: producers
// never block a consumer, and the consumer owns its private walk state
// outright once it has claimed a batch. Unlike a fixed-capacity ring,
// the buffer queue is node-based and unbounded, so the claim step is a
// CAS-swap of a linked list (a Treiber-style intake slot) rather than
// an index swap.
package queue

import "sync/atomic"

// Item is one node of a buffer queue: a reference to the queued buffer
// (identified by name, since the queue package must not import the
// buffer package to avoid a cycle) and the byte length of that
// buffer's payload at the time it was queued, used by GetOffset
// accounting without re-touching the BufferStore.
type Item struct {
	BufferName   uint32
	Channels     int
	SampleRate   int
	PayloadBytes int

	next *Item
}

// Items are allocated from a Pool; Queue.Append takes ownership of the
// pool-allocated Items it is given.

// Pool is a device-wide Treiber stack of free Items. Nodes are pushed
// back here by Queue.Drain's consumer once their payload has been
// reclaimed by the application (Unqueue) or recycled internally by the
// mixer (pending -> processed does not free a node; Unqueue does).
//
// ABA cannot occur within the protocol this module implements: a node
// is only ever re-pushed after exactly one thread held exclusive
// ownership of it (the API thread, after Unqueue copies its payload
// out), matching spec.md §9's "Lock-free stacks for pools" note.
type Pool struct {
	head atomic.Pointer[Item]
}

// Get pops one node from the pool, or allocates a fresh one if the
// pool is empty. The free-list is grown on demand and never shrunk
// (spec.md §3: "grown on demand, never shrunk").
func (p *Pool) Get() *Item {
	for {
		top := p.head.Load()
		if top == nil {
			return &Item{}
		}
		if p.head.CompareAndSwap(top, top.next) {
			top.next = nil
			return top
		}
	}
}

// Put pushes a node back onto the pool. The caller must no longer hold
// any other reference to it.
func (p *Pool) Put(it *Item) {
	it.BufferName = 0
	it.Channels = 0
	it.SampleRate = 0
	it.PayloadBytes = 0
	for {
		top := p.head.Load()
		it.next = top
		if p.head.CompareAndSwap(top, it) {
			return
		}
	}
}

// Queue is one of a source's two buffer queues (pending or processed).
// justQueued is the lock-free single-writer intake slot; head/tail are
// owned exclusively by the consumer once it has drained justQueued at
// least once, and require no further atomics to walk.
type Queue struct {
	justQueued atomic.Pointer[Item]

	// consumer-private
	head *Item
	tail *Item

	// numItems counts nodes across justQueued + head/tail combined; it
	// is the only field API threads read without being "the consumer",
	// so it stays atomic (spec.md §3 invariant: "num_items maintained
	// atomically").
	numItems atomic.Int32
}

// Append links items (given in play order as a slice) into one chain
// via their .next and adds it to the queue. Safe for concurrent callers; queue ordering
// within one call is preserved, between callers it is whichever wins
// the CAS (spec.md §4.2).
func (q *Queue) Append(items []*Item) {
	if len(items) == 0 {
		return
	}
	// Link the new chain in play order.
	for i := 0; i < len(items)-1; i++ {
		items[i].next = items[i+1]
	}
	head := items[0]
	tail := items[len(items)-1]
	tail.next = nil

	for {
		old := q.justQueued.Load()
		// Splice: new items first (oldest), then whatever was already
		// waiting to be drained, preserving FIFO across repeated
		// Append calls that land between Drains.
		if old != nil {
			last := items[len(items)-1]
			// Find end of `old` is not needed: Drain always empties
			// justQueued down to nil before a consumer-private walk,
			// so `old` here can only be non-nil if two Appends race;
			// splice `old` after our new chain so overall order stays
			// producer-call order for a racing pair (best effort, per
			// spec: "between callers it is whichever wins the CAS").
			last.next = old
		}
		if q.justQueued.CompareAndSwap(old, head) {
			q.numItems.Add(int32(len(items)))
			return
		}
		// Retry: unsplice before trying again with the fresh `old`.
		tail.next = nil
	}
}

// Drain atomically claims whatever is in justQueued, re-reverses it so
// it is in original append order (Append pushes newest-batch-first
// onto justQueued, so a straight claim is newest-batch-first; for a
// single batch it is already in order, reversal only matters when
// multiple racing Appends spliced), and appends the claimed chain to
// the consumer-private head/tail. Must only be called by the single
// consumer thread for this queue.
func (q *Queue) Drain() {
	claimed := q.justQueued.Swap(nil)
	if claimed == nil {
		return
	}
	// claimed is a (possibly spliced) forward-linked chain already in
	// play order (see Append); attach it to the consumer tail.
	if q.tail == nil {
		q.head = claimed
	} else {
		q.tail.next = claimed
	}
	for q.tail == nil || q.tail.next != nil {
		if q.tail == nil {
			q.tail = claimed
		} else {
			q.tail = q.tail.next
		}
	}
}

// Front returns the consumer-private head without removing it, or nil.
// Callers must Drain first if they want to see newly-appended items.
func (q *Queue) Front() *Item {
	return q.head
}

// PopFront removes and returns the consumer-private head, or nil if
// empty. Decrements numItems.
func (q *Queue) PopFront() *Item {
	if q.head == nil {
		return nil
	}
	it := q.head
	q.head = it.next
	if q.head == nil {
		q.tail = nil
	}
	it.next = nil
	q.numItems.Add(-1)
	return it
}

// Len returns the total number of items in the queue, including any
// still staged in justQueued (spec.md §8: BUFFERS_QUEUED invariant).
func (q *Queue) Len() int {
	return int(q.numItems.Load())
}

// PushFront reattaches an item at the consumer-private head, for a
// drained-too-early item that needs to be put back.
func (q *Queue) PushFront(it *Item) {
	it.next = q.head
	q.head = it
	if q.tail == nil {
		q.tail = it
	}
	q.numItems.Add(1)
}

// PushBack appends a single already-owned item to the consumer-private
// tail without going through the atomic intake slot, so only the
// queue's consumer may call it (Source.GetOffset uses it to re-push a
// snapshot of the processed queue). A producer that is not the
// consumer uses Queue.Append instead.
func (q *Queue) PushBack(it *Item) {
	it.next = nil
	if q.tail == nil {
		q.head = it
		q.tail = it
	} else {
		q.tail.next = it
		q.tail = it
	}
	q.numItems.Add(1)
}

// DrainAll drains justQueued and then pops every consumer-private item,
// returning them in order (used by Stop/Rewind to move all pending
// nodes to processed, paired with an Append on the target queue by the
// caller).
func (q *Queue) DrainAll() []*Item {
	q.Drain()
	var out []*Item
	for it := q.PopFront(); it != nil; it = q.PopFront() {
		out = append(out, it)
	}
	return out
}
