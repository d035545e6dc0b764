package pfreader

import (
	"compress/zlib"
	"io"

	"golang.org/x/xerrors"
)

// LooseFileReader streams the content of a loose object. A loose object
// file is zlib-compressed starting at byte 0; the first headerEndOffset
// bytes of the *decompressed* stream are the object's header
// ("<type> <size>\0"), which this reader skips so callers only ever see
// the payload.
type LooseFileReader struct {
	f               io.ReadSeeker
	headerEndOffset int64
	size            int64

	zr   io.ReadCloser
	read int64
}

// NewLooseFileReader returns a ContentReader over the content of the
// loose object stored in f, skipping headerEndOffset decompressed bytes
// of header and stopping after size bytes of payload.
func NewLooseFileReader(f io.ReadSeeker, headerEndOffset, size int64) *LooseFileReader {
	return &LooseFileReader{
		f:               f,
		headerEndOffset: headerEndOffset,
		size:            size,
	}
}

func (l *LooseFileReader) init() error {
	if l.zr != nil {
		return nil
	}
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return xerrors.Errorf("could not rewind loose object file: %w", err)
	}
	zr, err := zlib.NewReader(l.f)
	if err != nil {
		return xerrors.Errorf("could not open zlib reader: %w", err)
	}
	if l.headerEndOffset > 0 {
		if _, err := io.CopyN(io.Discard, zr, l.headerEndOffset); err != nil {
			return xerrors.Errorf("could not skip header: %w", err)
		}
	}
	l.zr = zr
	return nil
}

// Read implements io.Reader.
func (l *LooseFileReader) Read(buf []byte) (int, error) {
	if err := l.init(); err != nil {
		return 0, err
	}
	if l.read >= l.size {
		return 0, io.EOF
	}
	if max := l.size - l.read; int64(len(buf)) > max {
		buf = buf[:max]
	}
	n, err := l.zr.Read(buf)
	l.read += int64(n)
	return n, err
}

// Forward implements ContentReader.
func (l *LooseFileReader) Forward(offset int64) error {
	if offset < l.read {
		if err := l.Reset(); err != nil {
			return err
		}
	}
	toSkip := offset - l.read
	if toSkip <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, l, toSkip); err != nil {
		return xerrors.Errorf("could not forward to offset %d: %w", offset, err)
	}
	return nil
}

// Reset implements ContentReader.
func (l *LooseFileReader) Reset() error {
	if l.zr != nil {
		if err := l.zr.Close(); err != nil {
			return xerrors.Errorf("could not close zlib reader: %w", err)
		}
	}
	l.zr = nil
	l.read = 0
	return nil
}
