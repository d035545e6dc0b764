// Package backend contains an implementation to store and retrieve
// objects and references from the odb, backed by the regular file
// system (or any afero.Fs, for tests).
package backend

import (
	"errors"
	"sync"

	"github.com/Nivl/git-go/ginternals"
	"github.com/Nivl/git-go/ginternals/config"
	"github.com/Nivl/git-go/ginternals/githash"
	"github.com/Nivl/git-go/ginternals/packfile"
	"github.com/Nivl/git-go/internal/cache"
	"github.com/Nivl/git-go/internal/syncutil"
	"github.com/spf13/afero"
)

// namedMutexSize is the number of shards backend.objectMu spreads its
// per-object locks over. A prime keeps the SDBM-hash distribution even.
const namedMutexSize = 257

// objectCacheSize is how many parsed objects Backend.cache keeps around.
// 0 disables the cache entirely (see NewFSWithOptions).
const objectCacheSize = 4096

// Backend stores and retrieves objects/references from the file system
// rooted at a config.Config's git directory. It keeps an in-memory index
// of every loose object and reference it has seen (built once at
// construction by loadLooseObject/loadRefs) plus every packfile it finds
// under objects/pack (loadPacks), and optionally caches parsed objects
// behind an LRU so repeated look-ups of hot objects skip re-parsing.
type Backend struct {
	config *config.Config
	fs     afero.Fs
	hash   githash.Hash

	// cache holds parsed *object.Object, keyed by githash.Oid. nil when
	// disabled.
	cache *cache.LRU
	// objectMu guards objectUnsafe/hasObjectUnsafe/WriteObject per-oid,
	// so two goroutines never race to parse or persist the same object.
	objectMu *syncutil.NamedMutex

	packfiles    map[githash.Oid]*packfile.Pack
	refs         sync.Map
	looseObjects sync.Map
}

// Options lets a caller tune a Backend's optional behaviors.
type Options struct {
	// ObjectCacheSize is the number of parsed objects to keep in the LRU
	// cache. 0 disables the cache. Defaults to objectCacheSize.
	ObjectCacheSize int
}

// NewFS returns a Backend backed by the real file system, using the
// default options.
func NewFS(cfg *config.Config) (*Backend, error) {
	return NewFSWithOptions(cfg, Options{ObjectCacheSize: objectCacheSize})
}

// NewFSWithOptions returns a Backend backed by cfg.FS (the regular OS
// file system unless cfg was built with a custom afero.Fs, e.g. in
// tests), with the given Options applied.
func NewFSWithOptions(cfg *config.Config, opts Options) (b *Backend, err error) {
	afs := cfg.FS
	if afs == nil {
		afs = afero.NewOsFs()
	}

	b = &Backend{
		config:   cfg,
		fs:       afs,
		hash:     ginternals.DefaultHash(),
		objectMu: syncutil.NewNamedMutex(namedMutexSize),
		packfiles: map[githash.Oid]*packfile.Pack{},
	}
	if opts.ObjectCacheSize > 0 {
		b.cache, err = cache.NewLRU(opts.ObjectCacheSize)
		if err != nil {
			return nil, err
		}
	}

	if err = b.loadConfig(); err != nil {
		return nil, err
	}
	if err = b.loadLooseObject(); err != nil {
		return nil, err
	}
	if err = b.loadPacks(); err != nil {
		return nil, err
	}
	if err = b.loadRefs(); err != nil {
		return nil, err
	}
	return b, nil
}

// Path returns the path to the .git directory
func (b *Backend) Path() string {
	return b.config.GitDirPath
}

// ObjectsPath returns the path to the directory storing the objects
func (b *Backend) ObjectsPath() string {
	return ginternals.ObjectsPath(b.config)
}

// Close closes every packfile this backend has opened. Safe to call
// more than once.
func (b *Backend) Close() error {
	var firstErr error
	for id, pack := range b.packfiles {
		if err := pack.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.packfiles, id)
	}
	return firstErr
}

// RefWalkFunc represents a function that will be applied on all
// references found by WalkReferences
type RefWalkFunc = func(ref *ginternals.Reference) error

// WalkStop is a fake error used to tell a Walk method to stop early
// without that being reported as a real failure to the caller.
var WalkStop = errors.New("stop walking") //nolint // not a real error, a sentinel for early-exit
