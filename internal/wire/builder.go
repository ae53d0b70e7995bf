package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMessageTooLarge is returned when an encoded frame would not fit the
// 16 bit size field.
var ErrMessageTooLarge = errors.New("message exceeds maximum frame size")

// Frame is an encoded message ready for the socket. FDs travel out of band.
type Frame struct {
	Data []byte
	FDs  []int
}

// MessageBuilder encodes one message. Put calls append arguments in
// declaration order.
type MessageBuilder struct {
	objectID uint32
	opcode   uint16
	buf      []byte
	fds      []int
}

// NewMessage starts a message addressed to objectID.
func NewMessage(objectID uint32, opcode uint16) *MessageBuilder {
	return &MessageBuilder{
		objectID: objectID,
		opcode:   opcode,
		buf:      make([]byte, HeaderSize, 64),
	}
}

func (b *MessageBuilder) putWord(v uint32) *MessageBuilder {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	return b
}

func (b *MessageBuilder) PutInt(v int32) *MessageBuilder { return b.putWord(uint32(v)) }
func (b *MessageBuilder) PutUint(v uint32) *MessageBuilder { return b.putWord(v) }
func (b *MessageBuilder) PutFixed(v Fixed) *MessageBuilder { return b.putWord(uint32(v)) }
func (b *MessageBuilder) PutObject(id uint32) *MessageBuilder { return b.putWord(id) }
func (b *MessageBuilder) PutNewID(id uint32) *MessageBuilder { return b.putWord(id) }

// PutString appends s with its NUL terminator and zero padding.
func (b *MessageBuilder) PutString(s string) *MessageBuilder {
	n := len(s) + 1
	b.putWord(uint32(n))
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	return b.pad(n)
}

// PutNullString appends the null string.
func (b *MessageBuilder) PutNullString() *MessageBuilder {
	return b.putWord(0)
}

// PutArray appends a length-prefixed, padded byte array.
func (b *MessageBuilder) PutArray(p []byte) *MessageBuilder {
	b.putWord(uint32(len(p)))
	b.buf = append(b.buf, p...)
	return b.pad(len(p))
}

// PutFD attaches a file descriptor. It takes no room in the payload.
func (b *MessageBuilder) PutFD(fd int) *MessageBuilder {
	b.fds = append(b.fds, fd)
	return b
}

func (b *MessageBuilder) pad(n int) *MessageBuilder {
	for i := n; i%4 != 0; i++ {
		b.buf = append(b.buf, 0)
	}
	return b
}

// Build writes the header and returns the encoded frame.
func (b *MessageBuilder) Build() (Frame, error) {
	if len(b.buf) > MaxMessageSize {
		return Frame{}, fmt.Errorf("%w: object %d opcode %d is %d bytes", ErrMessageTooLarge, b.objectID, b.opcode, len(b.buf))
	}
	binary.LittleEndian.PutUint32(b.buf[0:4], b.objectID)
	binary.LittleEndian.PutUint32(b.buf[4:8], uint32(len(b.buf))<<16|uint32(b.opcode))
	return Frame{Data: b.buf, FDs: b.fds}, nil
}
