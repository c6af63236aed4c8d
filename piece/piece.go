// Package piece holds the unit of spill: a bounded batch of entries that is
// accumulated in memory and handed to the spill store as a whole.
package piece

import "time"

// Piece is a retired, immutable batch of entries. Iteration order is not
// significant.
type Piece[K comparable, V any] struct {
	// Seq is the 0-based position of the piece in flush order.
	Seq uint64
	// FlushedAt is set when the piece is persisted or read back.
	FlushedAt time.Time
	entries   map[K]V
}

// New wraps entries as a piece. The caller must not modify entries afterwards.
func New[K comparable, V any](seq uint64, entries map[K]V) *Piece[K, V] {
	if entries == nil {
		entries = make(map[K]V)
	}
	return &Piece[K, V]{Seq: seq, entries: entries}
}

func (p *Piece[K, V]) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

func (p *Piece[K, V]) Get(key K) (V, bool) {
	v, ok := p.entries[key]
	return v, ok
}

func (p *Piece[K, V]) Range(method func(key K, value V) bool) {
	for key, value := range p.entries {
		if !method(key, value) {
			return
		}
	}
}

// Entries returns a copy of the piece contents.
func (p *Piece[K, V]) Entries() map[K]V {
	out := make(map[K]V, len(p.entries))
	for key, value := range p.entries {
		out[key] = value
	}
	return out
}
