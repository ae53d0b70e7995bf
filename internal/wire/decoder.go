// Package wire implements the Wayland wire format: frame splitting of a
// byte stream, typed argument readers and the matching message builder.
//
// All integers are little-endian. A frame starts with an 8 byte header:
// the object id, then one word holding size<<16 | opcode, where size
// counts the header itself.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of a frame header in bytes.
const HeaderSize = 8

// MaxMessageSize is the largest frame the 16 bit size field can describe.
const MaxMessageSize = 0xFFFF

// ErrFrameTooSmall is returned for a header whose size field is below
// HeaderSize. The stream cannot be resynchronized after it.
var ErrFrameTooSmall = errors.New("frame size smaller than header")

// RawMessage is one complete frame.
type RawMessage struct {
	ObjectID uint32
	Opcode   uint16
	Size     uint16
	Payload  []byte
}

// Args returns a reader over the message payload.
func (m *RawMessage) Args() *ArgReader {
	return NewArgReader(m.Payload)
}

func (m *RawMessage) String() string {
	return fmt.Sprintf("object=%d opcode=%d size=%d", m.ObjectID, m.Opcode, m.Size)
}

// Decoder accumulates stream data and splits it into frames. Socket
// reads may split or merge frames arbitrarily; partial data is kept until
// the rest arrives.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, 4096)}
}

// AppendData buffers a chunk read from the stream.
func (d *Decoder) AppendData(p []byte) {
	if d.off > 0 && d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	} else if d.off > cap(d.buf)/2 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered reports how many bytes are waiting to form a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// NextMessage returns the next complete frame, or nil when more data is
// needed. It never blocks and never drops partial data. A non-nil error is
// fatal for the connection.
func (d *Decoder) NextMessage() (*RawMessage, error) {
	pending := d.buf[d.off:]
	if len(pending) < HeaderSize {
		return nil, nil
	}

	objectID := binary.LittleEndian.Uint32(pending[0:4])
	word := binary.LittleEndian.Uint32(pending[4:8])
	size := uint16(word >> 16)
	opcode := uint16(word & 0xFFFF)

	if size < HeaderSize {
		return nil, fmt.Errorf("%w: object %d opcode %d declares %d bytes", ErrFrameTooSmall, objectID, opcode, size)
	}
	if len(pending) < int(size) {
		return nil, nil
	}

	payload := make([]byte, int(size)-HeaderSize)
	copy(payload, pending[HeaderSize:size])
	d.off += int(size)

	return &RawMessage{
		ObjectID: objectID,
		Opcode:   opcode,
		Size:     size,
		Payload:  payload,
	}, nil
}
