package kv_capacity

import "io"

// Index is the live key/value index behind a capacity map. Put and
// PutIfAbsent report the previous value and whether the key was already
// present; a false second result is a "new key" event.
type Index[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V) (V, bool)
	PutIfAbsent(key K, value V) (V, bool)
	Len() int64
	Range(func(key K, value V) bool)
}

// Map is the narrow capability surface of a capacity map. Every mutation
// path goes through the size accounting and piece rollover.
type Map[K comparable, V any] interface {
	io.Closer
	Put(key K, value V) (V, bool, error)
	PutIfAbsent(key K, value V) (V, bool, error)
	PutAll(entries map[K]V) (int64, error)
	Get(key K) (V, bool)
	Size() int32
	RealSize() int64
	Flush() error
}
