package packfile

import "github.com/Nivl/git-go/ginternals"

// LocatorKind discriminates where a packed object's bytes actually come
// from.
type LocatorKind int8

const (
	// LocatorPackfile places the object directly in a packfile, with no
	// delta to apply.
	LocatorPackfile LocatorKind = iota + 1
	// LocatorPackRef places the object in a packfile as a ref-delta: the
	// base object is referenced by its Oid and is looked up through this
	// same pack's index.
	LocatorPackRef
	// LocatorPackOfs places the object in a packfile as an ofs-delta: the
	// base object is referenced by its byte offset in the same pack.
	LocatorPackOfs
)

// Locator pins down exactly where, and how, to read a packed object's
// content.
type Locator struct {
	Kind LocatorKind

	// PackID is the packfile this entry lives in.
	PackID ginternals.Oid
	// Offset is where, in the packfile, the entry's zlib-compressed body
	// starts (i.e. right after the entry's header).
	Offset int64

	// BaseID is set for LocatorPackRef: the Oid of the delta's base
	// object.
	BaseID ginternals.Oid
	// BaseOffset is set for LocatorPackOfs: the byte offset, in the same
	// packfile, of the delta's base object's entry header.
	BaseOffset int64
}
