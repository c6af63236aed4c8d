// Package capmap provides CapacityMap, a concurrent key/value container that
// keeps an exact 64-bit count of distinct keys and spills every full batch
// of newly inserted keys ("piece") to a private append-only log.
//
// The log is an audit trail, not an overflow area: every entry stays in the
// live index and Get never reads from disk. The log is deleted on Close, or
// through the exit hook registry at shutdown.
package capmap

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	kv_capacity "kv-capacity"
	"kv-capacity/exithook"
	"kv-capacity/index"
	"kv-capacity/piece"
	"kv-capacity/store"
)

var _ kv_capacity.Map[string, string] = new(CapacityMap[string, string])

// CapacityMap composes the live index, the current piece, the size
// accountant and the spill store. All counters are owned by the instance.
type CapacityMap[K comparable, V any] struct {
	index kv_capacity.Index[K, V]

	// lifecycle is held shared by every operation and exclusively by Close,
	// so no write lands on a half-closed store.
	lifecycle sync.RWMutex
	closed    bool

	// rollover guards current, nextSeq and the accountant's in-progress count.
	rollover   sync.Mutex
	current    *piece.Buffer[K, V]
	accountant *piece.Accountant
	nextSeq    uint64

	// handoff is taken before rollover is released so retired pieces reach
	// the store in flush order without holding rollover across the write.
	handoff sync.Mutex
	store   *store.SpillStore[K, V]

	// write hands a retired piece to store.
	write func(p *piece.Piece[K, V]) error

	hook *exithook.Handle
	log  zerolog.Logger
}

// New creates a map and its spill file. A spill file that cannot be created
// is reported as *kv_capacity.ConstructionError.
func New[K comparable, V any](optFns ...func(o *Options)) (*CapacityMap[K, V], error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PieceSize <= 0 {
		return nil, kv_capacity.ErrInvalidPieceSize
	}

	spill, err := store.New[K, V](opts.storeOptions)
	if err != nil {
		return nil, err
	}

	m := &CapacityMap[K, V]{
		index:      index.NewConcurrent[K, V](),
		current:    piece.NewBuffer[K, V](opts.PieceSize),
		accountant: piece.NewAccountant(opts.PieceSize),
		store:      spill,
		write:      spill.Write,
		log:        opts.Logger,
	}
	if opts.ExitHooks != nil {
		m.hook = opts.ExitHooks.Register(m)
	}
	return m, nil
}

// Put stores value under key and returns the value it replaced. A key that
// was absent counts toward the size and the current piece, and may roll the
// piece over to the spill store before Put returns.
func (m *CapacityMap[K, V]) Put(key K, value V) (V, bool, error) {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	if m.closed {
		var zero V
		return zero, false, kv_capacity.ErrClosed
	}
	return m.put(key, value)
}

// PutIfAbsent stores value only if key is absent and returns the value
// already present, if any.
func (m *CapacityMap[K, V]) PutIfAbsent(key K, value V) (V, bool, error) {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	if m.closed {
		var zero V
		return zero, false, kv_capacity.ErrClosed
	}
	previous, existed := m.index.PutIfAbsent(key, value)
	if existed {
		return previous, true, nil
	}
	return previous, false, m.admit(key, value)
}

// PutAll stores every entry, rolling over as many pieces as the new keys
// fill. The returned count is the growth of the index during the call and is
// only exact when no other goroutine mutates the map concurrently; the
// map's own size accounting is always exact.
func (m *CapacityMap[K, V]) PutAll(entries map[K]V) (int64, error) {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	if m.closed {
		return 0, kv_capacity.ErrClosed
	}

	before := m.index.Len()
	for key, value := range entries {
		if _, _, err := m.put(key, value); err != nil {
			return m.index.Len() - before, err
		}
	}
	return m.index.Len() - before, nil
}

func (m *CapacityMap[K, V]) put(key K, value V) (V, bool, error) {
	previous, existed := m.index.Put(key, value)
	if existed {
		return previous, true, nil
	}
	return previous, false, m.admit(key, value)
}

// admit accounts for a new key and performs the rollover when the current
// piece is full.
func (m *CapacityMap[K, V]) admit(key K, value V) error {
	m.rollover.Lock()
	full, err := m.current.Add(key, value)
	if err != nil {
		m.rollover.Unlock()
		return err
	}
	// The buffer decides rollover; the accountant mirrors its count.
	if observed := m.accountant.Observe(); observed != full {
		pending, counted := m.current.Len(), m.accountant.Current()
		m.rollover.Unlock()
		return fmt.Errorf("piece buffer holds %d entries but accountant counted %d", pending, counted)
	}
	if !full {
		m.rollover.Unlock()
		return nil
	}
	return m.retireLocked()
}

// Flush spills the current piece if it holds any entries.
func (m *CapacityMap[K, V]) Flush() error {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	if m.closed {
		return kv_capacity.ErrClosed
	}

	m.rollover.Lock()
	if m.current.Empty() {
		m.rollover.Unlock()
		return nil
	}
	return m.retireLocked()
}

// retireLocked swaps the current piece for an empty one and writes the
// retired piece. It is called with rollover held and releases it.
func (m *CapacityMap[K, V]) retireLocked() error {
	retired, err := m.current.Seal(m.nextSeq)
	if err != nil {
		m.rollover.Unlock()
		return err
	}
	m.nextSeq++
	m.current = piece.NewBuffer[K, V](m.accountant.PieceSize())
	m.accountant.Roll()

	m.handoff.Lock()
	m.rollover.Unlock()
	defer m.handoff.Unlock()

	if err := m.write(retired); err != nil {
		return err
	}
	m.log.Debug().Uint64("seq", retired.Seq).Int("entries", retired.Len()).Msg("piece rolled over")
	return nil
}

// Get is served from the live index only.
func (m *CapacityMap[K, V]) Get(key K) (V, bool) {
	return m.index.Get(key)
}

// Range calls method for each live entry until it returns false.
func (m *CapacityMap[K, V]) Range(method func(key K, value V) bool) {
	m.index.Range(method)
}

// Size is RealSize truncated to 32 bits, for callers that expect an int-sized
// container. It is unreliable past math.MaxInt32 keys.
func (m *CapacityMap[K, V]) Size() int32 {
	return int32(m.accountant.Total())
}

// RealSize is the exact number of distinct keys ever inserted.
func (m *CapacityMap[K, V]) RealSize() int64 {
	return m.accountant.Total()
}

func (m *CapacityMap[K, V]) PieceSize() int {
	return m.accountant.PieceSize()
}

// FlushedPieces is the number of pieces handed to the spill store.
func (m *CapacityMap[K, V]) FlushedPieces() int64 {
	return m.accountant.FlushedPieces()
}

// CurrentPieceLen is the number of new keys waiting in the current piece.
func (m *CapacityMap[K, V]) CurrentPieceLen() int {
	m.rollover.Lock()
	defer m.rollover.Unlock()
	if m.current == nil {
		return 0
	}
	return m.current.Len()
}

// NewReader opens an independent cursor over the pieces spilled so far.
// Pieces spilled after the reader is opened are not visible to it.
func (m *CapacityMap[K, V]) NewReader() (*store.PieceReader[K, V], error) {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	if m.closed {
		return nil, kv_capacity.ErrClosed
	}
	return m.store.NewReader()
}

// Close deletes the spill file and drops the current piece. It is
// idempotent and is also what the exit hook runs.
func (m *CapacityMap[K, V]) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.closed {
		return nil
	}

	m.rollover.Lock()
	m.handoff.Lock()
	m.closed = true
	m.current = nil
	err := m.store.Close()
	m.handoff.Unlock()
	m.rollover.Unlock()

	m.hook.Unregister()
	m.log.Debug().Int64("size", m.accountant.Total()).Int64("pieces", m.accountant.FlushedPieces()).Msg("capacity map closed")
	return err
}
