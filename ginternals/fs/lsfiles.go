package fs

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// lsFiles implements the LsFiles contract (spec.md §4.2) on top of any
// afero.Fs, shared by both the OS and in-memory implementations.
// Grounded on original_source/src/fs/mod.rs's LsFiles iterator: if path
// is a directory, it's equivalent to read_dir; otherwise it's split into
// (parent, file-name-prefix) and every child of parent whose name begins
// with that prefix is returned.
func lsFiles(afs afero.Fs, path string) ([]string, error) {
	if isDir(afs, path) {
		return readDir(afs, path)
	}

	parent := filepath.Dir(path)
	prefix := filepath.Base(path)
	entries, err := readDir(afs, parent)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(filepath.Base(e), prefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

func readDir(afs afero.Fs, path string) ([]string, error) {
	if !isDir(afs, path) {
		return []string{}, nil
	}
	entries, err := afero.ReadDir(afs, path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, filepath.Join(path, e.Name()))
	}
	return out, nil
}

func isDir(afs afero.Fs, path string) bool {
	info, err := afs.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
