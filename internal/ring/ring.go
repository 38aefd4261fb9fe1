// Package ring implements a bounded FIFO of fixed-size byte slots backed by a
// single contiguous allocation.
//
// A Buffer performs no locking of its own; callers that share one between
// goroutines must serialize access.
package ring

import (
	"errors"
	"fmt"
	"math"
)

// ErrAllocation is returned when the backing storage cannot be obtained.
var ErrAllocation = errors.New("ring: allocation failed")

// maxStorage caps a single ring at 4 GiB.
const maxStorage = 1 << 32

// Buffer is a fixed-capacity circular queue of slotSize-byte slots.
type Buffer struct {
	storage  []byte
	slotSize int
	capacity int
	head     int // next slot to write
	tail     int // oldest occupied slot
	count    int
}

// New allocates storage for capacity slots of slotSize bytes each.
func New(capacity, slotSize int) (buf *Buffer, err error) {
	if capacity <= 0 || slotSize <= 0 {
		return nil, fmt.Errorf("%w: capacity %d, slot size %d", ErrAllocation, capacity, slotSize)
	}
	if capacity > math.MaxInt/slotSize || int64(capacity)*int64(slotSize) > maxStorage {
		return nil, fmt.Errorf("%w: %d slots of %d bytes exceeds limit", ErrAllocation, capacity, slotSize)
	}

	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("%w: %v", ErrAllocation, r)
		}
	}()

	return &Buffer{
		storage:  make([]byte, capacity*slotSize),
		slotSize: slotSize,
		capacity: capacity,
	}, nil
}

// HasRoom reports whether another slot can be pushed.
func (b *Buffer) HasRoom() bool { return b.count < b.capacity }

// IsEmpty reports whether no slot is occupied.
func (b *Buffer) IsEmpty() bool { return b.count == 0 }

// Len returns the number of occupied slots.
func (b *Buffer) Len() int { return b.count }

// Cap returns the slot capacity.
func (b *Buffer) Cap() int { return b.capacity }

// PushBack copies slot into the next free slot. Input shorter than the slot
// size is zero-padded; longer input is truncated. It returns false, leaving
// the buffer untouched, when the ring is full.
func (b *Buffer) PushBack(slot []byte) bool {
	if b.count == b.capacity || b.storage == nil {
		return false
	}
	dst := b.slot(b.head)
	n := copy(dst, slot)
	clear(dst[n:])

	b.head++
	if b.head == b.capacity {
		b.head = 0
	}
	b.count++
	return true
}

// PopFront copies the oldest slot into dst and frees it. Bytes of dst beyond
// the slot size are zeroed. It returns false when the ring is empty.
func (b *Buffer) PopFront(dst []byte) bool {
	if b.count == 0 || b.storage == nil {
		return false
	}
	n := copy(dst, b.slot(b.tail))
	clear(dst[n:])

	b.tail++
	if b.tail == b.capacity {
		b.tail = 0
	}
	b.count--
	return true
}

// Release drops the backing storage. The buffer is unusable afterwards.
func (b *Buffer) Release() {
	b.storage = nil
	b.capacity = 0
	b.slotSize = 0
	b.head = 0
	b.tail = 0
	b.count = 0
}

func (b *Buffer) slot(i int) []byte {
	off := i * b.slotSize
	return b.storage[off : off+b.slotSize]
}
