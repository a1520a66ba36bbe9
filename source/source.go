// Package source provides the random-access byte sources a decoder reads from.
//
// A Source is any io.ReaderAt with a known length. Three constructors cover the usual inputs:
//
//	src := source.Bytes(data)             // in-memory buffer
//	src := source.New(file, stat.Size())  // any io.ReaderAt
//	f, err := source.Open("trace.jfr")    // read-only memory map
//
// Sources are read-only and safe for concurrent ReadAt calls as long as the underlying
// reader is (os.File, memory maps and byte slices all are). Section carves a chunk's byte
// range out of a source so independent workers can decode chunks without sharing a cursor.
package source

import (
	"fmt"
	"io"

	"golang.org/x/exp/mmap"

	"github.com/arloliu/jfr/errs"
)

// Source is a random-access byte source of known length.
type Source interface {
	io.ReaderAt
	// Size returns the total number of bytes available.
	Size() int64
}

// Contiguous is implemented by sources backed by a single in-memory buffer.
// Cursors use it to read without copying through ReadAt.
type Contiguous interface {
	Bytes() []byte
}

type bytesSource struct {
	b []byte
}

// Bytes wraps an in-memory buffer. The buffer must not be modified while in use.
func Bytes(b []byte) Source {
	return &bytesSource{b: b}
}

func (s *bytesSource) Size() int64 {
	return int64(len(s.b))
}

func (s *bytesSource) Bytes() []byte {
	return s.b
}

func (s *bytesSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(s.b)) {
		return 0, io.EOF
	}

	n := copy(p, s.b[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// New wraps an arbitrary io.ReaderAt holding size bytes.
func New(r io.ReaderAt, size int64) Source {
	return io.NewSectionReader(r, 0, size)
}

// Section returns the read-only range [off, off+n) of src.
//
// Parameters:
//   - src: Parent source
//   - off: Start offset within src
//   - n: Length of the range
//
// Returns:
//   - Source: Source whose offset 0 is src offset off
//   - error: ErrCorrupt if the range is not contained in src
func Section(src Source, off, n int64) (Source, error) {
	if off < 0 || n < 0 || off > src.Size() || n > src.Size()-off {
		return nil, fmt.Errorf("range [%d, %d) beyond source bounds (%d): %w", off, off+n, src.Size(), errs.ErrCorrupt)
	}

	if c, ok := src.(Contiguous); ok {
		return &bytesSource{b: c.Bytes()[off : off+n : off+n]}, nil
	}

	return io.NewSectionReader(src, off, n), nil
}

// File is a read-only memory-mapped file. Close it when done.
type File struct {
	m *mmap.ReaderAt
}

// Open memory-maps the file at path for reading.
func Open(path string) (*File, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap.Open(%s): %w", path, err)
	}

	return &File{m: m}, nil
}

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.m.ReadAt(p, off)
}

// Size returns the length of the mapped file.
func (f *File) Size() int64 {
	return int64(f.m.Len())
}

// Close unmaps the file.
func (f *File) Close() error {
	return f.m.Close()
}
