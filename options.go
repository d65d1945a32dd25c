package lsmkv

import (
	"log/slog"
	"math"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twlk9/lsmkv/bufferpool"
)

// Defaults: a tiny memtable and a 32 slot pool that may double once.
var (
	DefaultMemtableSize    = 100
	DefaultInitialCapacity = bufferpool.DefaultInitialCapacity
	DefaultMaxCapacity     = bufferpool.DefaultMaxCapacity
	DefaultExtendThreshold = bufferpool.DefaultExtendThreshold
	DefaultPolicy          = bufferpool.Clock
	DefaultMaxOpenFiles    = 64
)

// Options holds configuration options for the database.
type Options struct {
	// Database directory
	Path string

	// MemtableSize is the write budget of a memtable: the number of puts,
	// overwrites and deletes included, it absorbs before being flushed. Only
	// used when the database is created; an existing database keeps the size
	// stored in its metadata.
	MemtableSize int

	// Buffer pool directory sizing. Both capacities must be powers of two.
	InitialCapacity int
	MaxCapacity     int
	ExtendThreshold float64

	// Policy picks the page replacement algorithm.
	Policy bufferpool.Policy

	// DirectIO opens runs and metadata with O_DIRECT (F_NOCACHE on Darwin)
	// where the file system supports it.
	DirectIO bool

	// IndexedLookups serves point lookups from the in-memory sparse index
	// instead of a binary search over pages.
	IndexedLookups bool

	// MaxOpenFiles bounds the number of run readers kept open.
	MaxOpenFiles int

	// Database creation/existence options
	CreateIfMissing bool
	ErrorIfExists   bool

	// MetricsRegisterer receives the database and buffer pool collectors.
	// Nil disables metrics.
	MetricsRegisterer prometheus.Registerer

	// Structured logger
	Logger *slog.Logger
}

// DefaultOptions returns a new Options struct with the defaults above.
func DefaultOptions() *Options {
	return &Options{
		MemtableSize:    DefaultMemtableSize,
		InitialCapacity: DefaultInitialCapacity,
		MaxCapacity:     DefaultMaxCapacity,
		ExtendThreshold: DefaultExtendThreshold,
		Policy:          DefaultPolicy,
		DirectIO:        true,
		MaxOpenFiles:    DefaultMaxOpenFiles,
		CreateIfMissing: true,
		Logger:          DefaultLogger(),
	}
}

// Validate checks if the options are valid and returns an error if not.
func (o *Options) Validate() error {
	if o.Path == "" {
		return ErrInvalidPath
	}
	if o.MemtableSize <= 0 || o.MemtableSize > math.MaxInt32 {
		return ErrInvalidMemtableSize
	}
	if o.MaxOpenFiles <= 0 {
		return ErrInvalidMaxOpenFiles
	}
	if _, err := bufferpool.NewReplacer(o.Policy); err != nil {
		return err
	}
	po := o.poolOptions(nil)
	return po.Validate()
}

// Clone creates a copy of the options.
func (o *Options) Clone() *Options {
	if o == nil {
		return DefaultOptions()
	}
	clone := *o
	return &clone
}

func (o *Options) poolOptions(metrics *bufferpool.Metrics) bufferpool.Options {
	return bufferpool.Options{
		InitialCapacity: o.InitialCapacity,
		MaxCapacity:     o.MaxCapacity,
		ExtendThreshold: o.ExtendThreshold,
		Policy:          o.Policy,
		Logger:          o.Logger,
		Metrics:         metrics,
	}
}

// Helpful Logger functions
func getLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func DefaultLogger() *slog.Logger {
	return getLogger(slog.LevelWarn)
}

func DebugLogger() *slog.Logger {
	return getLogger(slog.LevelDebug)
}
