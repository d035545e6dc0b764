// Package packfile contains methods and structs to read and write packfiles
package packfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/Nivl/git-go/ginternals"
	gfs "github.com/Nivl/git-go/ginternals/fs"
	"github.com/Nivl/git-go/ginternals/githash"
	"github.com/Nivl/git-go/ginternals/object"
	"github.com/Nivl/git-go/ginternals/packfile/pfreader"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

const (
	// packfileHeaderSize contains the size of the header of a packfile.
	// the first 4 bytes contain the magic, the 4 next bytes contains the
	// version, and the last 4 bytes contains the number of objects in
	// the packfile, for a total of 12 bytes
	packfileHeaderSize = 12

	// ExtPackfile is the file extension used by a packfile's content.
	ExtPackfile = ".pack"
	// ExtIndex is the file extension used by a packfile's index.
	ExtIndex = ".idx"
)

func packfileMagic() []byte {
	return []byte{'P', 'A', 'C', 'K'}
}

func packfileVersion() []byte {
	return []byte{0, 0, 0, 2}
}

var (
	// ErrIntOverflow is an error thrown when the packfile couldn't
	// be parsed because some data couldn't fit in an int64
	ErrIntOverflow = errors.New("int64 overflow")
	// ErrInvalidMagic is an error thrown when a file doesn't have
	// the expected magic.
	ErrInvalidMagic = errors.New("invalid magic")
	// ErrInvalidVersion is an error thrown when a file has an
	// unsupported version
	ErrInvalidVersion = errors.New("invalid version")
)

// OidWalkFunc is called once per object oid during a walk. Returning
// OidWalkStop ends the walk early without it being treated as an error;
// returning any other error aborts the walk and propagates it to the
// caller.
type OidWalkFunc func(oid ginternals.Oid) error

// OidWalkStop is a sentinel an OidWalkFunc can return to stop a walk
// early, without it being treated as a real error.
var OidWalkStop = errors.New("stop walking") //nolint:goerr113 // used as a sentinel, not a real error

// Pack represents a Packfile
// The packfile contains a header, a content, and a footer
// Header: 12 bytes
//         The first 4 bytes contain the magic ('P', 'A', 'C', 'K')
//         The next 4 bytes contains the version (0, 0, 0, 2)
//         The last 4 bytes contains the number of objects in the packfile
// Content: Variable size
//          The content contains all the objects of the packfile, each zlib
//          compressed.
//          Before every zlib compressed objects comes a few bytes of
//          metadata about the object (the type and size of the object).
//          The size of the metadata is variable, so every byte contains
//          a MSB (Most Significant bit, the most left bit of a byte) that
//          indicates if the next byte is also part of the size or not.
//          The very first byte of the metadata contains:
//          - The MSB (1 bit)
//          - The type of the object (3 bits)
//          - the beginning of the size (4 bits)
//          The subsequent bytes contains:
//          - The MSB (1 bit)
//			- The next part of the size (7 bits)
//         The chucks of the size are little-endian encoded (right to left):
//         Final_size = [part_2][part_1][part_0]
//         /!\ The size of the object cannot be used to extract the
//         object. The size corresponds to the real size of the object
//         and not the size of the zlib compressed object (which is)
//         what we have here). It's possible that the compressed object
//         has a bigger size than the de-compressed object.
// Footer: 20 bytes
//         Contains the SHA1 sum of the packfile (without this SHA)
// https://github.com/git/git/blob/master/Documentation/technical/pack-format.txt
//
// The packfile's content is memory-mapped rather than read through
// afero.File/Seek: packs are read-heavy, randomly-accessed, and often
// much bigger than a single object, so letting the kernel page them in
// on demand avoids both the seek/read syscall churn and the buffering
// code a sequential reader would need.
type Pack struct {
	data      []byte
	mapCloser io.Closer
	idxFile   io.ReadSeekCloser
	idx       *PackIndex
	header    [packfileHeaderSize]byte
	id        ginternals.Oid

	// Mutex used to keep GetObject and Close from being called
	// concurrently
	mu sync.Mutex
}

// NewFromFile returns a pack object from the given file
// The pack will need to be closed using Close()
//
// fs is accepted for API compatibility with the rest of the backend,
// but isn't used to read the packfile or its index: the pack is always
// memory-mapped, and the index file (below) opened, straight off the
// real, local disk.
func NewFromFile(fs afero.Fs, filePath string) (pack *Pack, err error) {
	_ = fs

	osfs := gfs.NewOS()
	data, closer, err := osfs.MapFile(filePath)
	if err != nil {
		return nil, xerrors.Errorf("could not map %s: %w", filePath, err)
	}
	defer func() {
		if err != nil {
			closer.Close() //nolint:errcheck // it already failed
		}
	}()

	p := &Pack{
		data:      data,
		mapCloser: closer,
		id:        ginternals.NullOid,
	}

	if len(p.data) < packfileHeaderSize {
		return nil, xerrors.Errorf("packfile is too small to contain a header: %w", ErrInvalidMagic)
	}
	copy(p.header[:], p.data[:packfileHeaderSize])
	if !bytes.Equal(p.header[0:4], packfileMagic()) {
		return nil, xerrors.Errorf("invalid header: %w", ErrInvalidMagic)
	}
	if !bytes.Equal(p.header[4:8], packfileVersion()) {
		return nil, xerrors.Errorf("invalid header: %w", ErrInvalidVersion)
	}

	if len(p.data) < packfileHeaderSize+ginternals.OidSize {
		return nil, xerrors.Errorf("packfile is too small to contain its trailing checksum: %w", ErrInvalidMagic)
	}
	p.id, err = ginternals.NewOidFromHex(p.data[len(p.data)-ginternals.OidSize:])
	if err != nil {
		return nil, xerrors.Errorf("could not read packfile id: %w", err)
	}

	// Now we load the index file
	indexFilePath := strings.TrimSuffix(filePath, ExtPackfile) + ExtIndex
	p.idxFile, err = osfs.ReadFile(indexFilePath)
	if err != nil {
		return nil, xerrors.Errorf("could not open %s: %w", indexFilePath, err)
	}
	defer func() {
		if err != nil {
			p.idxFile.Close() //nolint:errcheck // it already failed
		}
	}()
	p.idx, err = NewIndex(bufio.NewReader(p.idxFile), ginternals.DefaultHash())
	if err != nil {
		return nil, xerrors.Errorf("could create index for %s: %w", indexFilePath, err)
	}

	return p, nil
}

// locatorAt parses the entry header located at offset and returns a
// Locator describing how to build a ContentReader for it, the entry's
// own type (for a delta entry this is ObjectDeltaRef/ObjectDeltaOFS,
// not the terminal type -- that's only known once the base is
// resolved), and the declared size of the entry's own (still possibly
// deltified) content.
func (pck *Pack) locatorAt(offset int64) (loc Locator, typ object.Type, size int64, err error) {
	if offset < 0 || offset >= int64(len(pck.data)) {
		return Locator{}, 0, 0, xerrors.Errorf("offset %d is out of bounds: %w", offset, io.ErrUnexpectedEOF)
	}
	data := pck.data[offset:]

	metadata := data
	if len(metadata) > 10 {
		metadata = metadata[:10]
	}
	if len(metadata) == 0 {
		return Locator{}, 0, 0, xerrors.Errorf("could not get object meta: %w", io.ErrUnexpectedEOF)
	}

	// value       : MTTT_SSSS // M = MSB ; T = type ; S = size
	// & 0111_0000 : 0TTT_0000
	// >> 4        : 0000_0TTT
	typ = object.Type((metadata[0] & 0b_0111_0000) >> 4)
	if !typ.IsValid() {
		return Locator{}, 0, 0, xerrors.Errorf("unknown object type %d", typ)
	}

	// value       : MTTT_SSSS // M = MSB ; T = type; S = size
	// & 0000_1111  : 0000_SSSS
	objectSize := uint64(metadata[0] & 0b_0000_1111)
	headerLen := 1
	if pck.isMSBSet(metadata[0]) {
		rest, byteRead, err := pck.readSize(metadata[1:])
		if err != nil {
			return Locator{}, 0, 0, xerrors.Errorf("couldn't read object size: %w", err)
		}
		headerLen += byteRead
		objectSize |= rest << 4
	}
	if headerLen > len(data) {
		return Locator{}, 0, 0, xerrors.Errorf("not enough space for entry header: %w", io.ErrUnexpectedEOF)
	}

	loc = Locator{
		Kind:   LocatorPackfile,
		PackID: pck.id,
	}

	switch typ { //nolint:exhaustive // only 2 types have a special treatment
	case object.ObjectDeltaRef:
		if headerLen+ginternals.OidSize > len(data) {
			return Locator{}, 0, 0, xerrors.Errorf("not enough space for base object id: %w", io.ErrUnexpectedEOF)
		}
		baseOid, err := ginternals.NewOidFromHex(data[headerLen : headerLen+ginternals.OidSize])
		if err != nil {
			return Locator{}, 0, 0, xerrors.Errorf("could not parse base object id: %w", err)
		}
		headerLen += ginternals.OidSize
		loc.Kind = LocatorPackRef
		loc.BaseID = baseOid
	case object.ObjectDeltaOFS:
		offsetData := data[headerLen:]
		if len(offsetData) > 9 {
			offsetData = offsetData[:9]
		}
		relOffset, byteRead, err := pck.readDeltaOffset(offsetData)
		if err != nil {
			return Locator{}, 0, 0, xerrors.Errorf("couldn't read base object offset: %w", err)
		}
		headerLen += byteRead
		loc.Kind = LocatorPackOfs
		loc.BaseOffset = offset - int64(relOffset)
	}

	loc.Offset = offset + int64(headerLen)
	return loc, typ, int64(objectSize), nil
}

// buildReader returns a streaming ContentReader for the object at
// offset, along with its terminal type (the type of the fully
// reconstructed object, once every delta in its chain has been
// applied). Delta bases are resolved recursively, without ever
// materializing an intermediate object.
func (pck *Pack) buildReader(offset int64) (pfreader.ContentReader, object.Type, error) {
	loc, typ, size, err := pck.locatorAt(offset)
	if err != nil {
		return nil, 0, err
	}

	switch loc.Kind {
	case LocatorPackfile:
		return pfreader.NewPackZlibReader(pck.data, loc.Offset, size), typ, nil

	case LocatorPackOfs:
		baseReader, baseType, err := pck.buildReader(loc.BaseOffset)
		if err != nil {
			return nil, 0, xerrors.Errorf("could not build base reader at offset %d: %w", loc.BaseOffset, err)
		}
		delta := pfreader.NewPackZlibReader(pck.data, loc.Offset, size)
		return pfreader.NewDeltaReader(baseReader, delta), baseType, nil

	case LocatorPackRef:
		baseOffset, err := pck.idx.GetObjectOffset(loc.BaseID)
		if err != nil {
			return nil, 0, xerrors.Errorf("could not find base object %s: %w", loc.BaseID.String(), err)
		}
		baseReader, baseType, err := pck.buildReader(int64(baseOffset))
		if err != nil {
			return nil, 0, xerrors.Errorf("could not build base reader at offset %d: %w", baseOffset, err)
		}
		delta := pfreader.NewPackZlibReader(pck.data, loc.Offset, size)
		return pfreader.NewDeltaReader(baseReader, delta), baseType, nil

	default:
		return nil, 0, xerrors.Errorf("unexpected locator kind %d", loc.Kind)
	}
}

// getObjectAt returns the object located at the given offset, resolving
// and applying as many levels of delta as needed.
func (pck *Pack) getObjectAt(oid ginternals.Oid, offset int64) (*object.Object, error) {
	r, typ, err := pck.buildReader(offset)
	if err != nil {
		return nil, err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Errorf("could not read object at offset %d: %w", offset, err)
	}
	return object.NewWithID(oid, typ, content), nil
}

// GetObject returns the object that has the given SHA
func (pck *Pack) GetObject(oid ginternals.Oid) (*object.Object, error) {
	pck.mu.Lock()
	defer pck.mu.Unlock()

	objectOffset, err := pck.idx.GetObjectOffset(oid)
	if err != nil {
		if !errors.Is(err, ginternals.ErrObjectNotFound) {
			return nil, xerrors.Errorf("could not get object index: %w", err)
		}
		return nil, err
	}
	return pck.getObjectAt(oid, int64(objectOffset))
}

// WalkOids runs f on every oid referenced by this pack's index.
func (pck *Pack) WalkOids(f OidWalkFunc) error {
	return pck.idx.Walk(f)
}

// FindObjectID resolves a (possibly abbreviated) object id against this
// pack's index, returning the full Oid of every object matching its
// prefix.
func (pck *Pack) FindObjectID(id ginternals.ObjectID) ([]githash.Oid, error) {
	return pck.idx.FindObjectID(id)
}

// ObjectCount returns the number of objects in the packfile
func (pck *Pack) ObjectCount() uint32 {
	return binary.BigEndian.Uint32(pck.header[8:])
}

// ID returns the ID of the packfile
func (pck *Pack) ID() ginternals.Oid {
	return pck.id
}

// Close frees the resources
func (pck *Pack) Close() error {
	pck.mu.Lock()
	defer pck.mu.Unlock()

	mapErr := pck.mapCloser.Close()
	idxErr := pck.idxFile.Close()
	if mapErr != nil {
		return mapErr
	}
	return idxErr
}

// readSize reads the provided bytes to extract what's left for the
// size from an object metadata.
// This method is only to read the remaining parts of a size.
func (pck *Pack) readSize(data []byte) (objectSize uint64, bytesRead int, err error) {
	if len(data) == 0 {
		return 0, 0, xerrors.Errorf("no data to read a size from: %w", io.ErrUnexpectedEOF)
	}
	for i, b := range data {
		bytesRead++

		// We make sure to remove the MSB because it's not part of the size
		chunk := pck.unsetMSB(b)

		// Sizes are little endian encoded, because why not
		objectSize = pck.insertLittleEndian7(objectSize, chunk, uint8(i))

		// No more MSB? Then we're done reading the size
		if !pck.isMSBSet(b) {
			break
		}
	}

	// if the last byte read has its MSB set it means that we have an
	// overflow (bytesRead - 1 is also == to len(data))
	if pck.isMSBSet(data[bytesRead-1]) {
		return 0, 0, ErrIntOverflow
	}

	return objectSize, bytesRead, nil
}

// readDeltaOffset reads the provided bytes to extract a delta offset.
// The format of the each byte is:
// - 1 bit (MSB) that is used to know if we need to read the next byte
// - 7 bits that contains a chunk of offset
// The offset is big-endian encoded.
// Each byte that has its MSB set also adds 1 to the value read so far,
// before the next chunk is appended.
func (pck *Pack) readDeltaOffset(data []byte) (offset uint64, bytesRead int, err error) {
	if len(data) == 0 {
		return 0, 0, xerrors.Errorf("no data to read a delta offset from: %w", io.ErrUnexpectedEOF)
	}
	for _, b := range data {
		bytesRead++

		// We set the MSB to 0 since it's not part of the offset
		chunk := pck.unsetMSB(b)

		// Offsets are big endian encoded, because why not
		offset = pck.insertBigEndian7(offset, chunk)

		// No more MSB? Then we're done reading the offset
		if !pck.isMSBSet(b) {
			break
		}

		// To save more space (I guess?), every byte followed by another
		// one carries an implicit +1 on the value read so far
		offset++
	}
	// if the last byte read has its MSB set it means that we have an
	// overflow (bytesRead-1 is also == to len(data))
	if pck.isMSBSet(data[bytesRead-1]) {
		return 0, 0, ErrIntOverflow
	}

	return offset, bytesRead, nil
}

// insertLittleEndian7 inserts $chunk into $base from the left.
// Only the 7 most right bits will be inserted.
// Example:
// base   = 1110_1010_1111_1100
// chunk  = 1010_1011
// Result = 1010_1011_1110_1010_1111_1100 [chunk][base]
func (pck *Pack) insertLittleEndian7(base uint64, chunk, position uint8) uint64 {
	// To build the final number in little endian, we first need to
	// add x*7 new bits to the right of the new chunk with "<< position*7"
	// (7, because our chunk is encoded on 7 bits because of the MSB)
	// then we use "| base" to insert and replace all the 0s by the
	// bits we got. x*7 corresponds to the number of bits already set
	// inside $base.
	//
	// That might sound confusing so here's an example:
	// Assuming that:
	// - Our current base is 0000_0000_0011_1010
	// - We're inserting 011_0011 (position=1, because it's the second chunk)
	//
	// 011_0011 << 1*7  = 0001_1001_1000_0000    // we make enough space on the left for $base
	// | base           = 0001_1001_1011_1010 // we insert base
	return (uint64(chunk) << (position * 7)) | base
}

// insertBigEndian7 inserts $chunk into $base from the right
// Only the 7 most right bits will be inserted.
// Example:
// base   = 1110_1010_1111_1100
// chunk  = 1010_1011
// Result = 1110_1010_1111_1100_1010_1011 [base][chunk]
func (pck *Pack) insertBigEndian7(base uint64, chunk uint8) uint64 {
	return base<<7 | uint64(chunk)
}

// isMSBSet checks if the MSB of a byte is set to 1.
// The MSB is the first bit on the left
func (pck *Pack) isMSBSet(b byte) bool {
	return b >= 0b_1000_0000
}

// unsetMSB set the most left bit of the byte to 0
func (pck *Pack) unsetMSB(b byte) byte {
	// To make any bit turn to 0 we can use a mask and a AND operator.
	// Example:
	// value       : XXXX_XXXX
	// & 0111_1111 : 0XXX_XXXX
	return b & 0b_0111_1111
}
