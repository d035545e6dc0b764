package pfreader

import (
	"bytes"
	"compress/zlib"
	"io"

	"golang.org/x/xerrors"
)

// PackZlibReader streams a packfile entry's content: the zlib-compressed
// bytes starting at offset in data, capped at size bytes of decompressed
// output. The cap matters because a packed entry's zlib stream is
// immediately followed by the next entry's header with no separator, so
// nothing but the declared size tells us where the object actually
// ends.
type PackZlibReader struct {
	data   []byte
	offset int64
	size   int64

	zr   io.ReadCloser
	read int64
}

// NewPackZlibReader returns a ContentReader over the zlib-compressed
// object body starting at offset in data, stopping after size bytes of
// decompressed output.
func NewPackZlibReader(data []byte, offset, size int64) *PackZlibReader {
	return &PackZlibReader{
		data:   data,
		offset: offset,
		size:   size,
	}
}

func (p *PackZlibReader) init() error {
	if p.zr != nil {
		return nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(p.data[p.offset:]))
	if err != nil {
		return xerrors.Errorf("could not open zlib reader at offset %d: %w", p.offset, err)
	}
	p.zr = zr
	return nil
}

// Read implements io.Reader.
func (p *PackZlibReader) Read(buf []byte) (int, error) {
	if err := p.init(); err != nil {
		return 0, err
	}
	if p.read >= p.size {
		return 0, io.EOF
	}
	if max := p.size - p.read; int64(len(buf)) > max {
		buf = buf[:max]
	}
	n, err := p.zr.Read(buf)
	p.read += int64(n)
	return n, err
}

// Forward implements ContentReader.
func (p *PackZlibReader) Forward(offset int64) error {
	if offset < p.read {
		if err := p.Reset(); err != nil {
			return err
		}
	}
	toSkip := offset - p.read
	if toSkip <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, p, toSkip); err != nil {
		return xerrors.Errorf("could not forward to offset %d: %w", offset, err)
	}
	return nil
}

// Reset implements ContentReader.
func (p *PackZlibReader) Reset() error {
	if p.zr != nil {
		if err := p.zr.Close(); err != nil {
			return xerrors.Errorf("could not close zlib reader: %w", err)
		}
	}
	p.zr = nil
	p.read = 0
	return nil
}
