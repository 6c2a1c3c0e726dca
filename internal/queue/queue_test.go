package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolGetPutReuses(t *testing.T) {
	var p Pool
	it := p.Get()
	it.BufferName = 7
	p.Put(it)

	got := p.Get()
	assert.Equal(t, uint32(0), got.BufferName, "Put must clear the node before it's reused")
}

func TestQueueAppendDrainOrder(t *testing.T) {
	var p Pool
	var q Queue

	a := p.Get()
	a.BufferName = 1
	b := p.Get()
	b.BufferName = 2
	c := p.Get()
	c.BufferName = 3

	q.Append([]*Item{a, b, c})
	assert.Equal(t, 3, q.Len())

	q.Drain()
	assert.Equal(t, uint32(1), q.Front().BufferName)

	first := q.PopFront()
	assert.Equal(t, uint32(1), first.BufferName)
	second := q.PopFront()
	assert.Equal(t, uint32(2), second.BufferName)
	assert.Equal(t, 1, q.Len())
}

func TestQueueDrainAll(t *testing.T) {
	var p Pool
	var q Queue
	q.Append([]*Item{p.Get(), p.Get()})

	items := q.DrainAll()
	assert.Len(t, items, 2)
	assert.Equal(t, 0, q.Len())
}

func TestQueuePushFrontPushBack(t *testing.T) {
	var p Pool
	var q Queue
	x := p.Get()
	x.BufferName = 9
	q.PushBack(x)
	assert.Equal(t, uint32(9), q.Front().BufferName)

	y := p.Get()
	y.BufferName = 5
	q.PushFront(y)
	assert.Equal(t, uint32(5), q.Front().BufferName)
	assert.Equal(t, 2, q.Len())
}
