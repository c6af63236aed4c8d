package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	kv_capacity "kv-capacity"
	"kv-capacity/codec"
	"kv-capacity/piece"
)

type StoreState int64

const (
	StateUninitialized StoreState = iota
	StateActive
	StateClosed
)

func (s StoreState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("StoreState(%d)", int64(s))
	}
}

type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

// Options configures a SpillStore.
type Options struct {
	// Dir holds the spill file. Empty means os.TempDir().
	Dir         string
	Prefix      string
	Extension   string
	Codec       codec.Codec
	Compression Compression
	// SyncOnWrite fsyncs after every piece.
	SyncOnWrite bool
	Clock       kv_capacity.Clock
	Logger      zerolog.Logger
}

var DefaultOptions = Options{
	Prefix:      "capacitymap-",
	Extension:   ".bin",
	Codec:       codec.Default,
	Compression: CompressionZstd,
	Clock:       kv_capacity.NewRealClock(),
	Logger:      zerolog.Nop(),
}

var errNotInitialized = errors.New("spill store is not initialized")

// SpillStore is a single-writer append log of pieces backed by a private
// temporary file. Writes are serialized; readers opened with NewReader see
// the pieces committed at the time they were opened.
type SpillStore[K comparable, V any] struct {
	path        string
	writer      *os.File
	lock        sync.Mutex
	state       StoreState
	failed      error
	committed   atomic.Int64
	pieces      atomic.Int64
	encoder     *zstd.Encoder
	codec       codec.Codec
	clock       kv_capacity.Clock
	syncOnWrite bool
	log         zerolog.Logger
}

// New allocates a uniquely named spill file and opens it for appending.
// Failures are reported as *kv_capacity.ConstructionError.
func New[K comparable, V any](optFns ...func(o *Options)) (*SpillStore[K, V], error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Clock == nil {
		opts.Clock = kv_capacity.NewRealClock()
	}

	fileName := filepath.Join(opts.Dir, opts.Prefix+uuid.NewString()+opts.Extension)
	writeFile, err := os.OpenFile(fileName, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, kv_capacity.NewConstructionError(fileName, err)
	}

	var encoder *zstd.Encoder
	if opts.Compression == CompressionZstd {
		encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			_ = writeFile.Close()
			_ = os.Remove(fileName)
			return nil, kv_capacity.NewConstructionError(fileName, err)
		}
	}

	s := &SpillStore[K, V]{
		path:        fileName,
		writer:      writeFile,
		state:       StateActive,
		encoder:     encoder,
		codec:       opts.Codec,
		clock:       opts.Clock,
		syncOnWrite: opts.SyncOnWrite,
		log:         opts.Logger.With().Str("spill_file", fileName).Logger(),
	}
	s.log.Debug().Str("codec", opts.Codec.Name()).Bool("compressed", encoder != nil).Msg("spill store created")
	return s, nil
}

// Write appends p as one record. Encoding happens outside the write lock;
// the append itself is serialized so records never interleave. Any failure
// is sticky: the store rejects every later write with the same *WriteError.
func (s *SpillStore[K, V]) Write(p *piece.Piece[K, V]) error {
	if p == nil {
		return errors.New("cannot write a nil piece")
	}
	// perform any marshalling outside the critical section to keep it small
	data, encodeErr := s.encode(p)

	s.lock.Lock()
	defer s.lock.Unlock()

	switch s.state {
	case StateUninitialized:
		return errNotInitialized
	case StateClosed:
		return kv_capacity.ErrClosed
	}
	if s.failed != nil {
		return s.failed
	}
	if encodeErr != nil {
		s.failed = kv_capacity.NewWriteError(p.Seq, encodeErr)
		return s.failed
	}

	bytesWritten, err := s.writer.Write(data)
	if err == nil && s.syncOnWrite {
		err = s.writer.Sync()
	}
	if err != nil {
		s.failed = kv_capacity.NewWriteError(p.Seq, err)
		s.log.Error().Err(err).Uint64("seq", p.Seq).Msg("spill write failed")
		return s.failed
	}

	s.committed.Add(int64(bytesWritten))
	s.pieces.Add(1)
	s.log.Debug().Uint64("seq", p.Seq).Int("entries", p.Len()).Int("bytes", bytesWritten).Msg("piece spilled")
	return nil
}

func (s *SpillStore[K, V]) encode(p *piece.Piece[K, V]) ([]byte, error) {
	if s.codec == nil || s.clock == nil {
		return nil, errNotInitialized
	}
	record, err := newPieceRecord(p, s.codec, s.encoder, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return record.MarshalBinary()
}

// NewReader opens an independent cursor over the pieces committed so far.
func (s *SpillStore[K, V]) NewReader() (*PieceReader[K, V], error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	switch s.state {
	case StateUninitialized:
		return nil, errNotInitialized
	case StateClosed:
		return nil, kv_capacity.ErrClosed
	}
	return OpenPieceReader[K, V](s.path, s.committed.Load())
}

// Close closes the spill file and deletes it. Removal failures are logged
// and swallowed since the file is disposable. Closing twice is a no-op.
func (s *SpillStore[K, V]) Close() error {
	if s == nil {
		return nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state != StateActive {
		s.state = StateClosed
		return nil
	}
	s.state = StateClosed

	if err := s.writer.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close spill file")
	}
	if s.encoder != nil {
		_ = s.encoder.Close()
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn().Err(err).Msg("failed to remove spill file")
	}
	s.log.Debug().Int64("pieces", s.pieces.Load()).Msg("spill store closed")
	return nil
}

func (s *SpillStore[K, V]) State() StoreState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Path returns the location of the spill file.
func (s *SpillStore[K, V]) Path() string {
	return s.path
}

// Pieces returns the number of records appended.
func (s *SpillStore[K, V]) Pieces() int64 {
	return s.pieces.Load()
}

// Size returns the number of bytes committed to the log.
func (s *SpillStore[K, V]) Size() int64 {
	return s.committed.Load()
}
