package jfr

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/go-kit/log"

	"github.com/arloliu/jfr/internal/options"
)

// Progress reports the position of a scan to a stop predicate.
type Progress struct {
	// Chunk is the index of the current chunk.
	Chunk int
	// Offset is the absolute file offset of the chunk, or of the event record while events
	// are being read.
	Offset int64
	// Events counts the records already yielded from the current chunk.
	Events int
}

// StopFunc ends a scan early when it returns true. Stopping is not an error.
type StopFunc func(Progress) bool

type config struct {
	logger         log.Logger
	stop           StopFunc
	workers        int
	maxDepth       int
	maxArrayLength int
	maxRecordSize  int64
}

func newConfig() *config {
	return &config{
		logger:  log.NewNopLogger(),
		workers: runtime.GOMAXPROCS(0),
	}
}

func (c *config) stopped(p Progress) bool {
	return c.stop != nil && c.stop(p)
}

// Option configures a Decoder.
type Option = options.Option[*config]

// WithLogger sets the logger receiving warnings (warn level) and chunk boundaries (debug level).
// The default discards everything. The logger must be safe for concurrent use when chunks
// are decoded with ChunksConcurrent.
func WithLogger(logger log.Logger) Option {
	return options.New(func(c *config) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger

		return nil
	})
}

// WithStop sets a predicate checked once per chunk and once per event record.
func WithStop(fn StopFunc) Option {
	return options.NoError(func(c *config) {
		c.stop = fn
	})
}

// WithWorkers sets the number of chunk bodies ChunksConcurrent decodes at once.
// The default is GOMAXPROCS.
func WithWorkers(n int) Option {
	return options.New(func(c *config) error {
		if n < 1 {
			return fmt.Errorf("workers must be at least 1, got %d", n)
		}
		c.workers = n

		return nil
	})
}

// WithMaxDepth bounds the nesting of metadata elements and of inline field values.
func WithMaxDepth(n int) Option {
	return options.New(func(c *config) error {
		if n < 1 {
			return fmt.Errorf("max depth must be at least 1, got %d", n)
		}
		c.maxDepth = n

		return nil
	})
}

// WithMaxArrayLength bounds the element count of one array field.
func WithMaxArrayLength(n int) Option {
	return options.New(func(c *config) error {
		if n < 1 {
			return fmt.Errorf("max array length must be at least 1, got %d", n)
		}
		c.maxArrayLength = n

		return nil
	})
}

// WithMaxRecordSize bounds the size of one metadata, constant pool or event record.
func WithMaxRecordSize(n int64) Option {
	return options.New(func(c *config) error {
		if n < 1 {
			return fmt.Errorf("max record size must be at least 1, got %d", n)
		}
		c.maxRecordSize = n

		return nil
	})
}
