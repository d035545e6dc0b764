package fs

import (
	"io"
	"io/ioutil"

	"github.com/spf13/afero"
)

// Mem is an in-memory file system used in tests so the engine can be
// exercised without touching disk. Backed by afero.NewMemMapFs.
type Mem struct {
	afs afero.Fs
}

// NewMem returns an empty in-memory file system.
func NewMem() *Mem {
	return &Mem{afs: afero.NewMemMapFs()}
}

// Fs returns the underlying afero.Fs, so tests can seed it (MkdirAll,
// WriteFile, ...) before exercising the engine against it.
func (m *Mem) Fs() afero.Fs {
	return m.afs
}

// IsDir implements FS
func (m *Mem) IsDir(path string) bool {
	return isDir(m.afs, path)
}

// ReadDir implements FS
func (m *Mem) ReadDir(path string) ([]string, error) {
	return readDir(m.afs, path)
}

// LsFiles implements FS
func (m *Mem) LsFiles(path string) ([]string, error) {
	return lsFiles(m.afs, path)
}

// ReadFile implements FS
func (m *Mem) ReadFile(path string) (io.ReadSeekCloser, error) {
	return m.afs.Open(path)
}

// MapFile implements FS. Since a MemMapFs file already lives entirely in
// memory, "mapping" it is just reading it fully and handing back a
// no-op closer.
func (m *Mem) MapFile(path string) (data []byte, closer io.Closer, err error) {
	f, err := m.afs.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	data, err = ioutil.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}
	return data, ioutil.NopCloser(nil), nil
}
