package ginternals

import (
	"bytes"
	"encoding/hex"
	"errors"
)

// ErrBadOid is returned when a user-supplied hex string cannot be
// interpreted as an object ID: it is longer than 40 hex characters, has
// an odd number of hex digits, or contains non-hex characters.
var ErrBadOid = errors.New("bad object id")

// ObjectID is a full 20-byte object ID or a partial byte prefix (1-19
// bytes) as typed by a user doing a short-hash lookup. Unlike Oid, which
// always denotes a concrete, stored object, an ObjectID is only ever a
// lookup argument: it is never used as a map key or persisted anywhere.
//
// Comparison is asymmetric by design: a Partial ObjectID only compares
// the bytes it actually holds, so it can match any stored Oid that
// shares its prefix.
type ObjectID struct {
	bytes [OidSize]byte
	// size is the number of meaningful bytes in `bytes`. A size of
	// OidSize means the ObjectID is Full; anything smaller is Partial.
	size int
}

// ParseObjectID parses a user-supplied hex string into an ObjectID.
// A 40-character string produces a Full ID; a shorter, even-length
// string produces a Partial one. Anything else fails with ErrBadOid.
func ParseObjectID(hexID string) (ObjectID, error) {
	if len(hexID) > OidSize*2 {
		return ObjectID{}, ErrBadOid
	}
	if len(hexID)%2 != 0 {
		return ObjectID{}, ErrBadOid
	}
	raw, err := hex.DecodeString(hexID)
	if err != nil {
		return ObjectID{}, ErrBadOid
	}
	return NewObjectIDFromBytes(raw)
}

// NewObjectIDFromBytes builds an ObjectID from 1 to OidSize raw bytes
func NewObjectIDFromBytes(raw []byte) (ObjectID, error) {
	if len(raw) == 0 || len(raw) > OidSize {
		return ObjectID{}, ErrBadOid
	}
	id := ObjectID{size: len(raw)}
	copy(id.bytes[:], raw)
	return id, nil
}

// FullObjectID turns a stored Oid into a Full ObjectID, for callers that
// want to run it through the same Compare() used for prefix matches
func FullObjectID(oid Oid) ObjectID {
	id := ObjectID{size: OidSize}
	copy(id.bytes[:], oid.Bytes())
	return id
}

// IsFull returns whether the id is a full, 20-byte ID
func (id ObjectID) IsFull() bool {
	return id.size == OidSize
}

// Bytes returns the raw bytes held by the id (1 to OidSize of them)
func (id ObjectID) Bytes() []byte {
	return id.bytes[:id.size]
}

// FanoutByte returns the first byte of the id, used to bound a fan-out
// table search. Safe to call since an ObjectID always holds >= 1 byte.
func (id ObjectID) FanoutByte() byte {
	return id.bytes[0]
}

// String returns the lowercase hex representation of the held bytes
func (id ObjectID) String() string {
	return hex.EncodeToString(id.Bytes())
}

// Full returns the id as an Oid, if it is a Full id
func (id ObjectID) Full() (Oid, bool) {
	if !id.IsFull() {
		return NullOid, false
	}
	oid, err := NewOidFromHex(id.bytes[:])
	if err != nil {
		return NullOid, false
	}
	return oid, true
}

// Compare compares id against another ObjectID the way
// ObjectId::partial_cmp works: only the bytes the shorter of the two
// holds are compared, so a Partial id compares equal to any Full id
// (or other Partial id) sharing its prefix. The fan-out table must be
// consulted before calling Compare on index entries spanning more than
// one fan-out bucket; this method only resolves the tie-break once the
// search window is already bounded to the right first byte.
func (id ObjectID) Compare(other ObjectID) int {
	n := id.size
	if other.size < n {
		n = other.size
	}
	return bytes.Compare(id.bytes[:n], other.bytes[:n])
}

// CompareOid compares id against a stored, full Oid using the same
// asymmetric semantics as Compare.
func (id ObjectID) CompareOid(oid Oid) int {
	n := id.size
	full := oid.Bytes()
	if len(full) < n {
		n = len(full)
	}
	return bytes.Compare(id.bytes[:n], full[:n])
}
