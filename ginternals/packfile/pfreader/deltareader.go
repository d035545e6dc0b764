package pfreader

import (
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/xerrors"
)

// ErrCorruptDelta is returned when a delta stream doesn't follow git's
// copy/insert instruction format.
var ErrCorruptDelta = errors.New("corrupt delta stream")

// deltaState tracks where DeltaReader is in replaying the current
// instruction: NEXT means "read a new instruction byte", COPY/INSERT
// mean an instruction is in progress and may still need more bytes than
// fit in a single Read call.
type deltaState int

const (
	deltaStateNext deltaState = iota
	deltaStateCopy
	deltaStateInsert
	deltaStateDone
)

// DeltaReader streams the result of applying a delta on top of a base
// ContentReader. The base may itself be a DeltaReader, which is how a
// multi-level delta chain gets resolved: each level only ever reads
// forward through its own base, never materializing it.
type DeltaReader struct {
	base  ContentReader
	delta ContentReader

	initialized bool
	outputSize  int64
	emitted     int64

	state      deltaState
	copyLeft   int64
	insertLeft int64
}

// NewDeltaReader returns a ContentReader that replays delta's
// instructions against base.
func NewDeltaReader(base, delta ContentReader) *DeltaReader {
	return &DeltaReader{base: base, delta: delta}
}

// init reads the delta header: a varint-encoded base size (unused here;
// the base reader already knows its own length) followed by a
// varint-encoded output size.
func (d *DeltaReader) init() error {
	if d.initialized {
		return nil
	}
	if _, _, err := readVarint(d.delta); err != nil {
		return xerrors.Errorf("could not read delta base size: %w", err)
	}
	outputSize, _, err := readVarint(d.delta)
	if err != nil {
		return xerrors.Errorf("could not read delta output size: %w", err)
	}
	d.outputSize = outputSize
	d.state = deltaStateNext
	d.initialized = true
	return nil
}

// Read implements io.Reader.
func (d *DeltaReader) Read(buf []byte) (int, error) {
	if err := d.init(); err != nil {
		return 0, err
	}
	if d.emitted >= d.outputSize {
		return 0, io.EOF
	}

	total := 0
	for total < len(buf) && d.emitted < d.outputSize {
		switch d.state {
		case deltaStateNext:
			if err := d.nextInstruction(); err != nil {
				return total, err
			}
		case deltaStateInsert:
			n := int64(len(buf) - total)
			if n > d.insertLeft {
				n = d.insertLeft
			}
			read, err := io.ReadFull(d.delta, buf[total:total+int(n)])
			total += read
			d.emitted += int64(read)
			d.insertLeft -= int64(read)
			if err != nil {
				return total, xerrors.Errorf("could not read insert payload: %w", err)
			}
			if d.insertLeft == 0 {
				d.state = deltaStateNext
			}
		case deltaStateCopy:
			n := int64(len(buf) - total)
			if n > d.copyLeft {
				n = d.copyLeft
			}
			read, err := io.ReadFull(d.base, buf[total:total+int(n)])
			total += read
			d.emitted += int64(read)
			d.copyLeft -= int64(read)
			if err != nil {
				return total, xerrors.Errorf("could not read copy payload from base: %w", err)
			}
			if d.copyLeft == 0 {
				d.state = deltaStateNext
			}
		case deltaStateDone:
			return total, nil
		}
	}
	return total, nil
}

// nextInstruction reads one delta instruction byte and sets up the
// state machine to replay it.
//
// The instruction byte's MSB picks the kind:
//   - clear: an INSERT. The remaining 7 bits are the number of literal
//     bytes (1-127) that immediately follow in the delta stream.
//   - set: a COPY. Bits 0-3 say which of 4 little-endian offset bytes
//     are present in the stream (any missing byte is 0); bits 4-6 do
//     the same for 3 length bytes. An all-zero length means 0x10000,
//     since 0 itself is never encoded.
func (d *DeltaReader) nextInstruction() error {
	op, err := readByte(d.delta)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return xerrors.Errorf("delta stream ended before producing %d bytes: %w", d.outputSize, ErrCorruptDelta)
		}
		return xerrors.Errorf("could not read instruction byte: %w", err)
	}

	if op&0b1000_0000 == 0 {
		if op == 0 {
			return xerrors.Errorf("zero-length insert instruction: %w", ErrCorruptDelta)
		}
		d.state = deltaStateInsert
		d.insertLeft = int64(op)
		return nil
	}

	var offsetBytes, lengthBytes [4]byte
	for i := 0; i < 4; i++ {
		if op&(1<<uint(i)) == 0 {
			continue
		}
		b, err := readByte(d.delta)
		if err != nil {
			return xerrors.Errorf("could not read copy offset byte %d: %w", i, err)
		}
		offsetBytes[i] = b
	}
	for i := 0; i < 3; i++ {
		if op&(1<<uint(i+4)) == 0 {
			continue
		}
		b, err := readByte(d.delta)
		if err != nil {
			return xerrors.Errorf("could not read copy length byte %d: %w", i, err)
		}
		lengthBytes[i] = b
	}

	offset := int64(binary.LittleEndian.Uint32(offsetBytes[:]))
	length := int64(binary.LittleEndian.Uint32(lengthBytes[:]))
	if length == 0 {
		length = 0x10000
	}

	if err := d.base.Forward(offset); err != nil {
		return xerrors.Errorf("could not seek base to offset %d: %w", offset, err)
	}
	d.state = deltaStateCopy
	d.copyLeft = length
	return nil
}

// Forward implements ContentReader.
func (d *DeltaReader) Forward(offset int64) error {
	if err := d.init(); err != nil {
		return err
	}
	if offset < d.emitted {
		if err := d.Reset(); err != nil {
			return err
		}
	}
	toSkip := offset - d.emitted
	if toSkip <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, d, toSkip); err != nil {
		return xerrors.Errorf("could not forward to offset %d: %w", offset, err)
	}
	return nil
}

// Reset implements ContentReader.
func (d *DeltaReader) Reset() error {
	if err := d.delta.Reset(); err != nil {
		return xerrors.Errorf("could not reset delta stream: %w", err)
	}
	if err := d.base.Reset(); err != nil {
		return xerrors.Errorf("could not reset base stream: %w", err)
	}
	d.initialized = false
	d.emitted = 0
	d.state = deltaStateNext
	d.copyLeft = 0
	d.insertLeft = 0
	return nil
}

// readByte reads a single byte off r.
func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// readVarint reads a git-delta-header varint: base-128, little-endian,
// continuation flagged by the MSB of each byte. Returns the decoded
// value and how many bytes were consumed.
func readVarint(r io.Reader) (value int64, bytesRead int, err error) {
	shift := uint(0)
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, bytesRead, err
		}
		bytesRead++
		value |= int64(b&0b0111_1111) << shift
		if b&0b1000_0000 == 0 {
			break
		}
		shift += 7
	}
	return value, bytesRead, nil
}
