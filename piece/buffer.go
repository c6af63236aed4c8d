package piece

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrBufferSealed = errors.New("buffer is sealed")
	ErrBufferFull   = errors.New("add will exceed piece capacity")
)

// Buffer accumulates the current, unflushed piece. It is not safe for
// concurrent use; the owner serializes access under its rollover lock.
// Once sealed the buffer rejects further adds and its entries belong to the
// returned Piece.
type Buffer[K comparable, V any] struct {
	entries  map[K]V
	capacity int
	sealed   atomic.Bool
}

func NewBuffer[K comparable, V any](capacity int) *Buffer[K, V] {
	return &Buffer[K, V]{
		entries:  make(map[K]V, capacity),
		capacity: capacity,
	}
}

// Add records a newly inserted key. It returns true once the buffer holds
// capacity entries.
func (b *Buffer[K, V]) Add(key K, value V) (bool, error) {
	if b.sealed.Load() {
		return false, ErrBufferSealed
	}
	if _, ok := b.entries[key]; !ok && len(b.entries) >= b.capacity {
		return true, ErrBufferFull
	}
	b.entries[key] = value
	return b.Full(), nil
}

func (b *Buffer[K, V]) Len() int {
	return len(b.entries)
}

func (b *Buffer[K, V]) Capacity() int {
	return b.capacity
}

func (b *Buffer[K, V]) Full() bool {
	return len(b.entries) >= b.capacity
}

func (b *Buffer[K, V]) Empty() bool {
	return len(b.entries) == 0
}

// Seal retires the buffer and returns its contents as piece seq. Sealing
// twice is an error since the entries were already handed off.
func (b *Buffer[K, V]) Seal(seq uint64) (*Piece[K, V], error) {
	if !b.sealed.CompareAndSwap(false, true) {
		return nil, ErrBufferSealed
	}
	p := New(seq, b.entries)
	b.entries = nil
	return p, nil
}

func (b *Buffer[K, V]) String() string {
	return fmt.Sprintf("len: %d, capacity: %d, sealed: %t", len(b.entries), b.capacity, b.sealed.Load())
}
