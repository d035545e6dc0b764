package packfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/Nivl/git-go/ginternals"
	"github.com/Nivl/git-go/ginternals/githash"
	"github.com/Nivl/git-go/internal/readutil"
)

const (
	layer1Size      = 1024
	layer3EntrySize = 4
	layer4EntrySize = 4
)

// indexMagic is the 4-byte magic that opens a v2+ index file. A v1 index
// has no magic: its first 4 bytes are already the first fan-out entry.
var indexMagic = []byte{255, 't', 'O', 'c'}

// UnsupportedPackIndexVersion is returned when a .idx file's version
// field isn't one this package knows how to parse (only 1 and 2 are).
var UnsupportedPackIndexVersion = fmt.Errorf("unsupported pack index version")

// indexEntry is one object's worth of data read out of an index file:
// its Oid, the CRC32 of its (still-compressed) packfile entry (always 0
// for a v1 index, which predates CRC storage), and its byte offset in
// the packfile.
type indexEntry struct {
	oid    githash.Oid
	crc32  uint32
	offset uint64
}

// PackIndex represents a packfile's PackIndex file (.idx)
// The index contains data to help parsing the packfile
// The index contains a header, 5 layers, and a footer.
// header: 8 bytes - See indexHeaderV2 to know the v2 header format.
//         A v1 index has no header/magic.
// Layer1: 1024 bytes. Contains 256 entries of 4 bytes.
//         Each entry contains the CUMULATIVE number of objects having
//         a oid starting by oid[0].
//         (oid[0] is an hex number, 0 <= x <= 255).
//         It's used to count how many objects have a SHA starting by
//         a specific value.
//         Example:
//         oid[0] represents the value of the 2 first chars of a SHA
//         So for 9b91da06e69613397b38e0808e0ba5ee6983251b, oid[0]
//         is equal to '9b' which corresponds to 155.
//         You'll then find the CUMULATIVE object count at the
//         position 155 * 4 in layer1.
//         To get the total of object starting with 9b, you will need
//         to look at the previous entry (9a at 154 * 4), and do
//         total_at_9b = cumul_9b - cummul_9a
// Layer2: x*20 bytes - Contains the IDs (20 Bytes each) of all the objects
//		   contained in the packfile. (v1: interleaved with layer4, see below)
// Layer3: x*4 bytes - Contains a CRC (Cyclic redundancy check) value
//         for each object. It's used to check that data did not get corrupt
//         by network operations. Doesn't exist in v1.
//         https://en.wikipedia.org/wiki/Cyclic_redundancy_check
// Layer4: x*4 - Contains the offset of each objects inside the packfile.
//         The first bit (and not byte, 1 byte = 8 bits) of the offset
//         (called MSB for Most Significant Bit) is used to store a special
//         value, and is not part of the offset:
//
//         If the packfile is < 2GB
//           - The MSB will always be 0
//           - The remaining bit (31, because it's 4 bytes of 8 bits
//             minus the MSB, so 4*8-1) correspond to the offset of
//             the object in the packfile.
//
//         If the packfile is > 2GB
//           - The MSB may be 0, or 1
//           - If 0, then the next 31 bits will contain the offset of
//             the object in the packfile.
//           - If 1, then the packfile offset doesn't fit in 4 bytes and
//             has been stored in layer5. In that case the next 31 bits will
//             corresponds to the new location of the offset in
//             layer5.
//         In v1, each entry is 4-byte-offset followed by the 20-byte oid
//         (there's no separate layer2/layer4, they're interleaved).
// Layer5: y*8 bytes - Only exists for packfile bigger than 2GB.
//         Basically the same as Layer4 but the offsets are on 8 bytes
//         instead of 4, because 4 bytes was too small to store those
//         offsets.
// Footer: 40 bytes - Contains 2 sha of 20 bytes each
//         The first is the sha1 sum of the packfile
//         The second is the sha1 sum of the index file minus this sha
//
// Resources:
// https://codewords.recurse.com/issues/three/unpacking-git-packfiles#idx-files
// https://git-scm.com/docs/pack-format
//
//nolint:govet // aligning the memory makes the struct harder to read since we want to keep "parseError" and "parsed" together
type PackIndex struct {
	mu sync.Mutex

	hash githash.Hash

	r readutil.BufferedReader

	hashOffset map[githash.Oid]uint64
	// entries is every object, sorted by Oid, as stored in the index.
	// Kept (instead of just the map) to run fan-out-bounded binary
	// searches for prefix (ObjectID) lookups.
	entries []indexEntry
	// fanout[b] is the index, into entries, of the first entry whose
	// Oid's leading byte is > b. fanout[255] == len(entries).
	fanout [256]int

	parseError error
	parsed     bool
}

// NewIndex returns an index object from the given reader
func NewIndex(r readutil.BufferedReader, hash githash.Hash) (idx *PackIndex, err error) {
	return &PackIndex{
		r:    r,
		hash: hash,
	}, nil
}

// GetObjectOffset returns the offset of Oid in the packfile
// If the object is not found ginternals.ErrObjectNotFound is returned
func (idx *PackIndex) GetObjectOffset(oid githash.Oid) (uint64, error) {
	if err := idx.parse(); err != nil {
		return 0, fmt.Errorf("could not parse the index file: %w", err)
	}
	offset, exists := idx.hashOffset[oid]
	if !exists {
		return 0, ginternals.ErrObjectNotFound
	}
	return offset, nil
}

// FindObjectID resolves a (possibly partial) ginternals.ObjectID to the
// full Oid of every stored object matching its prefix. A Full id that
// doesn't exist in this index returns an empty, nil-error slice: the
// caller is expected to try other packs before reporting not-found.
func (idx *PackIndex) FindObjectID(id ginternals.ObjectID) ([]githash.Oid, error) {
	if err := idx.parse(); err != nil {
		return nil, fmt.Errorf("could not parse the index file: %w", err)
	}

	lo := 0
	if b := id.FanoutByte(); b > 0 {
		lo = idx.fanout[b-1]
	}
	hi := idx.fanout[id.FanoutByte()]

	// entries[lo:hi] all share id's fan-out byte; binary-search inside
	// that window for the start of the matching range, then scan
	// forward while the (possibly partial) prefix still matches.
	start := sort.Search(hi-lo, func(i int) bool {
		entryID := ginternals.FullObjectID(idx.entries[lo+i].oid)
		return id.Compare(entryID) <= 0
	}) + lo

	var oids []githash.Oid
	for i := start; i < hi; i++ {
		entryID := ginternals.FullObjectID(idx.entries[i].oid)
		if id.Compare(entryID) != 0 {
			break
		}
		oids = append(oids, idx.entries[i].oid)
	}
	return oids, nil
}

// Walk runs f on every object referenced by the index, in Oid-sorted
// order. Walking stops early, without error, if f returns OidWalkStop;
// any other error from f is propagated to the caller.
func (idx *PackIndex) Walk(f OidWalkFunc) error {
	if err := idx.parse(); err != nil {
		return fmt.Errorf("could not parse the index file: %w", err)
	}
	for _, e := range idx.entries {
		if err := f(e.oid); err != nil {
			if errors.Is(err, OidWalkStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// parse extracts all the data from the index and puts them in memory.
func (idx *PackIndex) parse() (err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	// No reason to call this method more than once
	if idx.parsed {
		return nil
	}

	// If the method failed, then there's no reason to try again,
	// especially that the underlying reader doesn't get its cursor
	// reset
	if idx.parseError != nil {
		return idx.parseError
	}
	defer func() {
		if err != nil {
			idx.parseError = err
		}
	}()

	digest := newDigestingReader(idx.r)

	version, err := idx.readVersion(digest)
	if err != nil {
		return err
	}

	switch version {
	case 1:
		err = idx.parseV1(digest)
	case 2:
		err = idx.parseV2(digest)
	default:
		return UnsupportedPackIndexVersion
	}
	if err != nil {
		return err
	}

	if err := idx.verifyChecksum(digest); err != nil {
		return err
	}

	idx.buildFanout()
	idx.parsed = true
	return nil
}

// readVersion peeks at the first 4 bytes to decide between a v1
// (magic-less) and v2+ (magic-prefixed) index, consuming the v2 header
// (including the version number) if that's what it finds.
func (idx *PackIndex) readVersion(r *digestingReader) (int, error) {
	peek := make([]byte, 4)
	if _, err := io.ReadFull(r, peek); err != nil {
		return 0, fmt.Errorf("could not read index header: %w", err)
	}
	if !bytes.Equal(peek, indexMagic) {
		// no magic: this is a v1 index, and `peek` is already the first
		// 4 bytes of layer1's first fan-out entry.
		return 1, nil
	}
	rest := make([]byte, 4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, fmt.Errorf("could not read index version: %w", err)
	}
	return int(binary.BigEndian.Uint32(rest)), nil
}

// parseV2 parses the fan-out-bounded, CRC-carrying v2+ layout, starting
// right after the 8-byte header (already consumed by readVersion).
func (idx *PackIndex) parseV2(r *digestingReader) error {
	bufInt32 := make([]byte, 4)
	bufInt64 := make([]byte, 8)
	bufOid := make([]byte, idx.hash.OidSize())

	// First we parse layer1 to get the count of objects in the packfile.
	// Since layer1 stores a cumul, all we have to do is to get the number
	// at the last position, which is at 0xff (or 255). See doc for
	// more details
	lastEntryRelOffset := 255 * 4 // an entry is an int32, so 4 bytes
	if _, err := r.Discard(lastEntryRelOffset); err != nil {
		return fmt.Errorf("could not move pointer to the last entry of layer1: %w", err)
	}
	if _, err := io.ReadFull(r, bufInt32); err != nil {
		return fmt.Errorf("couldn't get the total number of objects: %w", err)
	}
	objectCount := int(binary.BigEndian.Uint32(bufInt32))

	entries := make([]indexEntry, objectCount)
	for i := 0; i < objectCount; i++ {
		if _, err := io.ReadFull(r, bufOid); err != nil {
			return fmt.Errorf("couldn't get the oid at index %d: %w", i, err)
		}
		oid, err := idx.hash.ConvertFromBytes(bufOid)
		if err != nil {
			return fmt.Errorf("invalid oid at index %d: %w", i, err)
		}
		entries[i].oid = oid
	}

	for i := range entries {
		if _, err := io.ReadFull(r, bufInt32); err != nil {
			return fmt.Errorf("couldn't read crc32 of oid %s: %w", entries[i].oid.String(), err)
		}
		entries[i].crc32 = binary.BigEndian.Uint32(bufInt32)
	}

	type layer5Data struct {
		index          int
		relativeOffset uint64
	}
	var layer5offsets []layer5Data

	for i := range entries {
		if _, err := io.ReadFull(r, bufInt32); err != nil {
			return fmt.Errorf("couldn't read offset of oid %s (layer4): %w", entries[i].oid.String(), err)
		}
		entry := binary.BigEndian.Uint32(bufInt32)
		msb := (entry >> 31) == 1
		offset := uint64(entry & 0b01111111111111111111111111111111)
		if msb {
			layer5offsets = append(layer5offsets, layer5Data{index: i, relativeOffset: offset})
			continue
		}
		entries[i].offset = offset
	}

	// Layer5 entries must be read in increasing relative-offset order
	// since the reader can't seek backwards.
	sort.Slice(layer5offsets, func(i, j int) bool {
		return layer5offsets[i].relativeOffset < layer5offsets[j].relativeOffset
	})
	currentRelativeOffset := uint64(0)
	for _, data := range layer5offsets {
		if data.relativeOffset != currentRelativeOffset {
			return fmt.Errorf("expected oid %s to be at (relative) offset %d, but is at %d instead: %w",
				entries[data.index].oid.String(), currentRelativeOffset, data.relativeOffset, os.ErrNotExist)
		}
		if _, err := io.ReadFull(r, bufInt64); err != nil {
			return fmt.Errorf("couldn't read offset of oid %s (layer5): %w", entries[data.index].oid.String(), err)
		}
		entries[data.index].offset = binary.BigEndian.Uint64(bufInt64)
		currentRelativeOffset += 8
	}

	idx.commitEntries(entries)
	return nil
}

// parseV1 parses the legacy layout: 256 4-byte fan-out entries (the
// first one already consumed by readVersion, which had to read it to
// look for the v2 magic), followed by objectCount entries of (4-byte
// offset, 20-byte oid) with no CRC and no layer5: v1 offsets are always
// 32-bit.
func (idx *PackIndex) parseV1(r *digestingReader) error {
	bufInt32 := make([]byte, 4)
	// readVersion's `peek` already consumed fan-out entry 0, so 254
	// entries are skipped to reach the last one (entry 255).
	if _, err := r.Discard(254 * 4); err != nil {
		return fmt.Errorf("could not move pointer to the last entry of layer1: %w", err)
	}
	if _, err := io.ReadFull(r, bufInt32); err != nil {
		return fmt.Errorf("couldn't get the total number of objects: %w", err)
	}
	objectCount := int(binary.BigEndian.Uint32(bufInt32))

	bufOid := make([]byte, idx.hash.OidSize())
	entries := make([]indexEntry, objectCount)
	for i := 0; i < objectCount; i++ {
		if _, err := io.ReadFull(r, bufInt32); err != nil {
			return fmt.Errorf("couldn't read offset at index %d: %w", i, err)
		}
		if _, err := io.ReadFull(r, bufOid); err != nil {
			return fmt.Errorf("couldn't read oid at index %d: %w", i, err)
		}
		oid, err := idx.hash.ConvertFromBytes(bufOid)
		if err != nil {
			return fmt.Errorf("invalid oid at index %d: %w", i, err)
		}
		entries[i].oid = oid
		entries[i].offset = uint64(binary.BigEndian.Uint32(bufInt32))
	}

	idx.commitEntries(entries)
	return nil
}

// commitEntries sorts entries by Oid (v2 already stores them sorted;
// v1's pre-allocation-by-count contract is honored the same way rather
// than replicating the original implementation's stated pre-alloc bug)
// and builds the final oid->offset map.
func (idx *PackIndex) commitEntries(entries []indexEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].oid.Bytes(), entries[j].oid.Bytes()) < 0
	})
	idx.entries = entries
	idx.hashOffset = make(map[githash.Oid]uint64, len(entries))
	for _, e := range entries {
		idx.hashOffset[e.oid] = e.offset
	}
}

// buildFanout fills idx.fanout from the now-sorted idx.entries.
func (idx *PackIndex) buildFanout() {
	e := 0
	for b := 0; b < 256; b++ {
		for e < len(idx.entries) && int(idx.entries[e].oid.Bytes()[0]) <= b {
			e++
		}
		idx.fanout[b] = e
	}
}

// verifyChecksum reads the 40-byte footer (packfile checksum, then the
// index's own self-checksum) and confirms the self-checksum matches the
// digest accumulated over everything read before it.
func (idx *PackIndex) verifyChecksum(r *digestingReader) error {
	packChecksum := make([]byte, idx.hash.OidSize())
	if _, err := io.ReadFull(r, packChecksum); err != nil {
		return fmt.Errorf("couldn't read packfile checksum from footer: %w", err)
	}

	// the digest up to (but excluding) the self-checksum field is what
	// the self-checksum is supposed to equal
	want := r.Sum()

	selfChecksum := make([]byte, idx.hash.OidSize())
	if _, err := io.ReadFull(r, selfChecksum); err != nil {
		return fmt.Errorf("couldn't read index checksum from footer: %w", err)
	}

	if !bytes.Equal(want, selfChecksum) {
		return ErrChecksumMismatch
	}
	return nil
}
