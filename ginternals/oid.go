package ginternals

import "github.com/Nivl/git-go/ginternals/githash"

// Oid represents a full, stored, content-addressed object ID.
// It's an alias of githash.Oid so that any concrete hash implementation
// (currently only SHA1 is wired in, see defaultHash below) can be used
// as a drop-in replacement without touching call sites.
type Oid = githash.Oid

// OidSize is the length, in bytes, of the Oid used by this repository
const OidSize = 20

// defaultHash is the hash algorithm used to build and parse Oids
// throughout the codebase. The repository format only supports SHA1
// packs/loose-objects for now; githash.Hash is kept pluggable for when
// that changes.
var defaultHash githash.Hash = githash.NewSHA1()

// NullOid is the zero-value Oid (20 null bytes)
var NullOid = defaultHash.NullOid()

// DefaultHash returns the hash algorithm used to build and parse Oids
// throughout the codebase.
func DefaultHash() githash.Hash {
	return defaultHash
}

// NewOidFromStr returns a full Oid from its 40-character hex representation
func NewOidFromStr(id string) (Oid, error) {
	return defaultHash.ConvertFromString(id)
}

// NewOidFromChars returns a full Oid from its hex representation, provided
// as a byte slice of ASCII hex digits
func NewOidFromChars(id []byte) (Oid, error) {
	return defaultHash.ConvertFromChars(id)
}

// NewOidFromHex returns a full Oid from its raw (non-hex-encoded) bytes.
// The name is kept consistent with existing call sites even though the
// input isn't hex-encoded: it mirrors githash.Hash.ConvertFromBytes.
func NewOidFromHex(id []byte) (Oid, error) {
	return defaultHash.ConvertFromBytes(id)
}

// NewOidFromContent returns the Oid that would be assigned to the given
// content (the hash-sum of the bytes). This never fails.
func NewOidFromContent(data []byte) Oid {
	return defaultHash.Sum(data)
}
