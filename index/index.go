package index

import (
	"sync"
	"sync/atomic"

	kv_capacity "kv-capacity"
)

// Concurrent is the live key/value index. Reads are lock-free and each
// per-key mutation is atomic; Len is exact once mutations settle.
type Concurrent[K comparable, V any] struct {
	mapIndex sync.Map
	size     atomic.Int64
}

var _ kv_capacity.Index[string, int] = new(Concurrent[string, int])

func NewConcurrent[K comparable, V any]() *Concurrent[K, V] {
	return &Concurrent[K, V]{}
}

func (c *Concurrent[K, V]) Get(key K) (V, bool) {
	value, ok := c.mapIndex.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	entry, _ := value.(V)
	return entry, true
}

// Put stores value and returns the value it replaced, if any.
func (c *Concurrent[K, V]) Put(key K, value V) (V, bool) {
	previous, loaded := c.mapIndex.Swap(key, value)
	if !loaded {
		c.size.Add(1)
		var zero V
		return zero, false
	}
	entry, _ := previous.(V)
	return entry, true
}

// PutIfAbsent stores value only when key is missing. It returns the value
// already present, if any.
func (c *Concurrent[K, V]) PutIfAbsent(key K, value V) (V, bool) {
	actual, loaded := c.mapIndex.LoadOrStore(key, value)
	if !loaded {
		c.size.Add(1)
		var zero V
		return zero, false
	}
	entry, _ := actual.(V)
	return entry, true
}

func (c *Concurrent[K, V]) Len() int64 {
	return c.size.Load()
}

func (c *Concurrent[K, V]) Range(method func(key K, value V) bool) {
	c.mapIndex.Range(func(k any, v any) bool {
		key, _ := k.(K)
		value, _ := v.(V)

		return method(key, value)
	})
}
