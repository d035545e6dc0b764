package packfile

import (
	"crypto/sha1" //nolint:gosec // sha1 is the hash pack index files are checksummed with
	"fmt"
	"hash"

	"github.com/Nivl/git-go/internal/readutil"
)

// digestingReader wraps a readutil.BufferedReader and feeds every byte
// that passes through Read or Discard into a running SHA1 digest. It's
// used to verify a pack index's trailing self-checksum without having
// to buffer the whole file: the checksum is simply the running digest
// at the moment the footer's checksum field itself is read.
//
// Grounded on original_source/src/fs/checksum.rs's ChecksumReader, which
// wraps the underlying reader the same way.
type digestingReader struct {
	r readutil.BufferedReader
	h hash.Hash
}

func newDigestingReader(r readutil.BufferedReader) *digestingReader {
	return &digestingReader{r: r, h: sha1.New()} //nolint:gosec
}

func (d *digestingReader) Read(p []byte) (n int, err error) {
	n, err = d.r.Read(p)
	if n > 0 {
		d.h.Write(p[:n])
	}
	return n, err
}

func (d *digestingReader) Discard(n int) (discarded int, err error) {
	buf := make([]byte, n)
	read := 0
	for read < n {
		c, rErr := d.r.Read(buf[read:])
		read += c
		if rErr != nil {
			d.h.Write(buf[:read])
			return read, rErr
		}
	}
	d.h.Write(buf[:read])
	return read, nil
}

// Sum returns the running digest of every byte read so far.
func (d *digestingReader) Sum() []byte {
	return d.h.Sum(nil)
}

// ErrChecksumMismatch is returned when a pack index's trailing SHA1
// self-checksum doesn't match the checksum of the file's actual content.
var ErrChecksumMismatch = fmt.Errorf("pack index checksum mismatch")
