// Package dataset opens seed and import files, which may be gzip compressed.
package dataset

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

type file struct {
	io.Reader
	closers []io.Closer
}

func (f *file) Close() error {
	var first error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open returns the contents of path, decompressing it when it starts with the
// gzip magic number regardless of extension.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	rc, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, path)
	}
	return rc, nil
}

// NewReader wraps r like Open does. Closing the result closes r when r is an
// io.Closer.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	out := &file{}
	if c, ok := r.(io.Closer); ok {
		out.closers = append(out.closers, c)
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "peek")
	}
	if !bytes.Equal(head, gzipMagic) {
		out.Reader = br
		return out, nil
	}

	gz, err := pgzip.NewReader(br)
	if err != nil {
		return nil, errors.Wrap(err, "gzip reader")
	}
	out.Reader = gz
	out.closers = append([]io.Closer{gz}, out.closers...)
	return out, nil
}
