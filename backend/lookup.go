package backend

import (
	"fmt"
	"path/filepath"

	"github.com/Nivl/git-go/ginternals"
	gfs "github.com/Nivl/git-go/ginternals/fs"
	"github.com/Nivl/git-go/ginternals/githash"
)

// Lookup resolves hex, a full or abbreviated hex object id, to the full
// Oid of the object it designates.
//
// A full id is returned as-is, without checking that the object actually
// exists (callers that need that guarantee should follow up with
// Object/HasObject, same as they would with a full id obtained any other
// way). An abbreviated id is resolved loose-first, falling back to
// packed: a prefix shared by several loose objects is treated as no
// loose match and the packfiles are searched next, while a prefix
// shared by several objects in the same
// pack index resolves to whichever one the index returns first. Callers
// that need a uniqueness guarantee should check for that themselves.
func (b *Backend) Lookup(hex string) (githash.Oid, error) {
	id, err := ginternals.ParseObjectID(hex)
	if err != nil {
		return b.hash.NullOid(), fmt.Errorf("could not parse object id %s: %w", hex, err)
	}
	if full, ok := id.Full(); ok {
		return full, nil
	}

	looseMatches, err := b.lookupLoose(id)
	if err != nil {
		return b.hash.NullOid(), fmt.Errorf("could not look up loose objects for %s: %w", hex, err)
	}
	if len(looseMatches) == 1 {
		return looseMatches[0], nil
	}

	for _, pack := range b.packfiles {
		packMatches, err := pack.FindObjectID(id)
		if err != nil {
			return b.hash.NullOid(), fmt.Errorf("could not look up packed objects for %s: %w", hex, err)
		}
		if len(packMatches) > 0 {
			return packMatches[0], nil
		}
	}

	return b.hash.NullOid(), ginternals.ErrObjectNotFound
}

// lookupLoose returns the full Oid of every loose object whose hex id
// starts with id's prefix. Loose objects are stored as
// objects/<first-2-hex-chars>/<remaining-hex-chars>, so a prefix lookup
// is a directory listing (by LsFiles) of objects/<2-char-dir> filtered by
// whatever of the prefix is left once the directory name is stripped.
func (b *Backend) lookupLoose(id ginternals.ObjectID) ([]githash.Oid, error) {
	path := ginternals.LooseObjectPath(b.config, id.String())
	entries, err := gfs.NewOS().LsFiles(path)
	if err != nil {
		return nil, fmt.Errorf("could not list %s: %w", path, err)
	}

	oids := make([]githash.Oid, 0, len(entries))
	for _, entry := range entries {
		sha := filepath.Base(filepath.Dir(entry)) + filepath.Base(entry)
		oid, err := b.hash.ConvertFromString(sha)
		if err != nil {
			return nil, fmt.Errorf("could not parse loose object name %s: %w", sha, err)
		}
		oids = append(oids, oid)
	}
	return oids, nil
}
