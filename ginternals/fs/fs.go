// Package fs provides the minimal file-system abstraction the object
// store needs: directory listing, prefix-based listing (used to resolve
// short object IDs), sequential reads, and memory-mapping. It exists so
// the engine can run unmodified against either the real OS file system
// or an in-memory one built for tests.
package fs

import (
	"io"
)

// FS is the contract the object-store engine requires of a file system.
// Implementations: OS (the real file system) and Mem (an in-memory
// double used in tests). Both obey the same contracts.
type FS interface {
	// IsDir returns whether path exists and is a directory
	IsDir(path string) bool
	// ReadDir returns the (unordered) one-level listing of path, or an
	// empty slice if path isn't a directory
	ReadDir(path string) ([]string, error)
	// LsFiles lists the files matching path. If path is a directory, this
	// is equivalent to ReadDir. Otherwise path is split into a parent
	// directory and a file-name prefix, and every child of that parent
	// whose name begins with the prefix is returned.
	LsFiles(path string) ([]string, error)
	// ReadFile opens path for sequential/seekable read. Returns an error
	// wrapping os.ErrNotExist (or a permission error) on failure.
	ReadFile(path string) (io.ReadSeekCloser, error)
	// MapFile memory-maps path and returns its bytes as an immutable
	// slice, plus a closer that must be called to release the mapping.
	MapFile(path string) (data []byte, closer io.Closer, err error)
}
