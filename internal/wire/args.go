package wire

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"
)

// Argument decoding errors. Each reader fails with its own sentinel so the
// dispatcher can forward the codec error verbatim.
var (
	ErrShortInt            = errors.New("buffer too small for i32")
	ErrShortUint           = errors.New("buffer too small for u32")
	ErrShortFixed          = errors.New("buffer too small for fixed")
	ErrShortObject         = errors.New("buffer too small for object id")
	ErrShortNewID          = errors.New("buffer too small for new_id")
	ErrShortString         = errors.New("buffer too small for string")
	ErrStringNotTerminated = errors.New("string is not NUL terminated")
	ErrStringPadding       = errors.New("string padding is missing or not zero")
	ErrStringInvalidUTF8   = errors.New("string is not valid UTF-8")
	ErrShortArray          = errors.New("buffer too small for array")
)

// ArgReader reads typed arguments from a message payload in order.
type ArgReader struct {
	data []byte
	off  int
}

// NewArgReader returns a reader positioned at the start of payload.
func NewArgReader(payload []byte) *ArgReader {
	return &ArgReader{data: payload}
}

// Remaining reports the unread byte count.
func (r *ArgReader) Remaining() int {
	return len(r.data) - r.off
}

func (r *ArgReader) word(short error) (uint32, error) {
	if r.Remaining() < 4 {
		return 0, short
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

// Int reads a signed 32 bit integer.
func (r *ArgReader) Int() (int32, error) {
	v, err := r.word(ErrShortInt)
	return int32(v), err
}

// Uint reads an unsigned 32 bit integer.
func (r *ArgReader) Uint() (uint32, error) {
	return r.word(ErrShortUint)
}

// Fixed reads a 24.8 fixed-point number.
func (r *ArgReader) Fixed() (Fixed, error) {
	v, err := r.word(ErrShortFixed)
	return Fixed(int32(v)), err
}

// Object reads an object id. 0 is the null object.
func (r *ArgReader) Object() (uint32, error) {
	return r.word(ErrShortObject)
}

// NewID reads the id of an object the sender is creating.
func (r *ArgReader) NewID() (uint32, error) {
	return r.word(ErrShortNewID)
}

// String reads a string argument. The null string reads as "".
func (r *ArgReader) String() (string, error) {
	s, _, err := r.NullableString()
	return s, err
}

// NullableString reads a string argument and reports whether it was the
// null string (length prefix 0).
func (r *ArgReader) NullableString() (string, bool, error) {
	n, err := r.word(ErrShortString)
	if err != nil {
		return "", false, err
	}
	if n == 0 {
		return "", true, nil
	}
	if uint64(n) > uint64(r.Remaining()) {
		return "", false, ErrShortString
	}

	padded := int(n+3) &^ 3
	if padded > r.Remaining() {
		return "", false, ErrStringPadding
	}

	raw := r.data[r.off : r.off+int(n)]
	if raw[n-1] != 0 {
		return "", false, ErrStringNotTerminated
	}
	for _, b := range r.data[r.off+int(n) : r.off+padded] {
		if b != 0 {
			return "", false, ErrStringPadding
		}
	}
	body := raw[:n-1]
	if !utf8.Valid(body) {
		return "", false, ErrStringInvalidUTF8
	}

	r.off += padded
	return string(body), false, nil
}

// Array reads a length-prefixed byte array. The returned slice is a copy.
func (r *ArgReader) Array() ([]byte, error) {
	n, err := r.word(ErrShortArray)
	if err != nil {
		return nil, err
	}
	padded := (uint64(n) + 3) &^ 3
	if padded > uint64(r.Remaining()) {
		return nil, ErrShortArray
	}
	out := make([]byte, n)
	copy(out, r.data[r.off:])
	r.off += int(padded)
	return out, nil
}
