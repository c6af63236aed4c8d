package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	kv_capacity "kv-capacity"
	"kv-capacity/piece"
)

// PieceReader is a forward-only cursor over a spill file. It never writes to
// the file and does not coordinate with the store's writer; it is bounded to
// the length the file had when the reader was opened.
type PieceReader[K comparable, V any] struct {
	file    *os.File
	reader  *io.LimitedReader
	decoder *zstd.Decoder
	err     error
	once    sync.Once
}

// OpenPieceReader opens path for reading from the start. A negative limit
// bounds the reader to the file's current size.
func OpenPieceReader[K comparable, V any](path string, limit int64) (*PieceReader[K, V], error) {
	readFile, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", kv_capacity.ErrClosed, err)
		}
		return nil, err
	}

	if limit < 0 {
		info, err := readFile.Stat()
		if err != nil {
			_ = readFile.Close()
			return nil, err
		}
		limit = info.Size()
	}

	return &PieceReader[K, V]{
		file:   readFile,
		reader: &io.LimitedReader{R: bufio.NewReader(readFile), N: limit},
	}, nil
}

// Next returns the next piece. It returns io.EOF at the clean end of the
// log and an error wrapping kv_capacity.ErrCorruptRecord for a truncated or
// malformed record. Errors are sticky.
func (r *PieceReader[K, V]) Next() (*piece.Piece[K, V], error) {
	if r.err != nil {
		return nil, r.err
	}

	record, err := readPieceRecord(r.reader)
	if err != nil {
		r.err = err
		return nil, err
	}

	if record.header.Flags&flagZstd != 0 && r.decoder == nil {
		r.decoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			r.err = err
			return nil, err
		}
	}

	p, err := decodePiece[K, V](record, r.decoder)
	if err != nil {
		r.err = err
		return nil, err
	}
	return p, nil
}

// Pieces yields the remaining pieces in flush order. Iteration stops after
// the first error; a clean end is not reported as an error.
func (r *PieceReader[K, V]) Pieces() iter.Seq2[*piece.Piece[K, V], error] {
	return func(yield func(*piece.Piece[K, V], error) bool) {
		for {
			p, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the read handle. It has no effect on the store.
func (r *PieceReader[K, V]) Close() error {
	var err error
	r.once.Do(func() {
		if r.decoder != nil {
			r.decoder.Close()
		}
		if r.err == nil {
			r.err = kv_capacity.ErrClosed
		}
		err = r.file.Close()
	})
	return err
}
