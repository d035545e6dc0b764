package fs

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/spf13/afero"
)

// OS is the real, on-disk file system. It wraps afero.NewOsFs for the
// directory/sequential-read operations, and memory-maps files directly
// via github.com/edsrzf/mmap-go for MapFile, since afero has no
// mmap-backed file type of its own.
type OS struct {
	afs afero.Fs
}

// NewOS returns an OS file system rooted at the real, local file system.
func NewOS() *OS {
	return &OS{afs: afero.NewOsFs()}
}

// IsDir implements FS
func (o *OS) IsDir(path string) bool {
	return isDir(o.afs, path)
}

// ReadDir implements FS
func (o *OS) ReadDir(path string) ([]string, error) {
	return readDir(o.afs, path)
}

// LsFiles implements FS
func (o *OS) LsFiles(path string) ([]string, error) {
	return lsFiles(o.afs, path)
}

// ReadFile implements FS
func (o *OS) ReadFile(path string) (io.ReadSeekCloser, error) {
	return o.afs.Open(path)
}

// mmapCloser adapts a mmap.MMap to io.Closer while keeping the backing
// *os.File alive long enough to be closed too: the mapping doesn't need
// the fd open after mmap(2) returns, but we still own it and must close
// it to avoid leaking a descriptor.
type mmapCloser struct {
	m mmap.MMap
	f *os.File
}

func (c *mmapCloser) Close() error {
	errUnmap := c.m.Unmap()
	errClose := c.f.Close()
	if errUnmap != nil {
		return errUnmap
	}
	return errClose
}

// MapFile implements FS by memory-mapping path read-only.
func (o *OS) MapFile(path string) (data []byte, closer io.Closer, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.Size() == 0 {
		// mmap.Map rejects zero-length files; there's nothing to map
		return []byte{}, f, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return []byte(m), &mmapCloser{m: m, f: f}, nil
}
