// Package pfreader provides streaming readers over the content of a git
// object, regardless of whether it's sitting in a loose file, stored
// undeltified in a packfile, or reachable only by replaying a chain of
// deltas. None of the readers here ever materialize an entire object in
// memory: content flows through them a buffer at a time, which is what
// lets a deep delta chain get resolved without allocating one big
// []byte per level.
package pfreader

import "io"

// ContentReader streams the (fully decompressed, fully un-deltified)
// content of a single git object.
type ContentReader interface {
	io.Reader

	// Forward moves the reader to the given absolute offset, measured
	// from the start of the content. If offset is behind the current
	// position, the reader rewinds (via Reset) and re-reads up to it;
	// there's no assumption that the underlying source supports seeking
	// backward on its own.
	Forward(offset int64) error

	// Reset rewinds the reader back to the start of the content.
	Reset() error
}
