package piece

import "sync/atomic"

// Accountant keeps the exact count of distinct keys inserted into one map
// and the in-progress count of its current piece. Counters are per instance.
//
// Observe and Roll must be called under the owner's rollover lock; the
// readers are safe to call at any time.
type Accountant struct {
	pieceSize      int64
	total          atomic.Int64
	current        atomic.Int64
	flushedPieces  atomic.Int64
	flushedEntries atomic.Int64
}

func NewAccountant(pieceSize int) *Accountant {
	return &Accountant{pieceSize: int64(pieceSize)}
}

// Observe counts one new key and reports whether the current piece reached
// the piece size.
func (a *Accountant) Observe() bool {
	a.total.Add(1)
	return a.current.Add(1) >= a.pieceSize
}

// Roll moves the in-progress count into the flushed totals.
func (a *Accountant) Roll() {
	n := a.current.Swap(0)
	if n == 0 {
		return
	}
	a.flushedPieces.Add(1)
	a.flushedEntries.Add(n)
}

func (a *Accountant) PieceSize() int {
	return int(a.pieceSize)
}

func (a *Accountant) Total() int64 {
	return a.total.Load()
}

func (a *Accountant) Current() int64 {
	return a.current.Load()
}

func (a *Accountant) FlushedPieces() int64 {
	return a.flushedPieces.Load()
}

func (a *Accountant) FlushedEntries() int64 {
	return a.flushedEntries.Load()
}
