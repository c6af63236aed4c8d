package capmap

import (
	"github.com/rs/zerolog"
	kv_capacity "kv-capacity"
	"kv-capacity/codec"
	"kv-capacity/exithook"
	"kv-capacity/store"
)

// DefaultPieceSize is the number of new keys per spilled piece.
const DefaultPieceSize = 100

// Options configures a CapacityMap.
type Options struct {
	// PieceSize is fixed for the lifetime of the map and must be positive.
	PieceSize int
	// TempDir holds the spill file. Empty means os.TempDir().
	TempDir     string
	Codec       codec.Codec
	Compression store.Compression
	SyncOnWrite bool
	Clock       kv_capacity.Clock
	Logger      zerolog.Logger
	// ExitHooks receives a cleanup that closes the map at shutdown. Nil
	// disables registration.
	ExitHooks *exithook.Registry
}

var DefaultOptions = Options{
	PieceSize:   DefaultPieceSize,
	Codec:       codec.Default,
	Compression: store.CompressionZstd,
	Clock:       kv_capacity.NewRealClock(),
	Logger:      zerolog.Nop(),
	ExitHooks:   exithook.Default,
}

func WithPieceSize(n int) func(o *Options) {
	return func(o *Options) { o.PieceSize = n }
}

func WithTempDir(dir string) func(o *Options) {
	return func(o *Options) { o.TempDir = dir }
}

func WithCodec(c codec.Codec) func(o *Options) {
	return func(o *Options) { o.Codec = c }
}

func WithCompression(c store.Compression) func(o *Options) {
	return func(o *Options) { o.Compression = c }
}

func WithLogger(log zerolog.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = log }
}

func WithClock(c kv_capacity.Clock) func(o *Options) {
	return func(o *Options) { o.Clock = c }
}

func WithExitHooks(r *exithook.Registry) func(o *Options) {
	return func(o *Options) { o.ExitHooks = r }
}

func (o Options) storeOptions(so *store.Options) {
	so.Dir = o.TempDir
	so.Codec = o.Codec
	so.Compression = o.Compression
	so.SyncOnWrite = o.SyncOnWrite
	so.Clock = o.Clock
	so.Logger = o.Logger
}
