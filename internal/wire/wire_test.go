package wire

import (
	"encoding/binary"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func buildFrame(t *testing.T, b *MessageBuilder) []byte {
	t.Helper()
	f, err := b.Build()
	require.NoError(t, err)
	return f.Data
}

func sampleStream(t *testing.T) []byte {
	var stream []byte
	stream = append(stream, buildFrame(t, NewMessage(1, 1).PutNewID(2))...)
	stream = append(stream, buildFrame(t, NewMessage(3, 0).PutNewID(4))...)
	stream = append(stream, buildFrame(t, NewMessage(4, 1).PutObject(7).PutInt(-5).PutInt(12))...)
	stream = append(stream, buildFrame(t, NewMessage(2, 0).PutUint(9).PutString("wl_compositor").PutUint(6).PutNewID(10))...)
	stream = append(stream, buildFrame(t, NewMessage(4, 6))...)
	return stream
}

func drain(t *testing.T, d *Decoder) []*RawMessage {
	t.Helper()
	var out []*RawMessage
	for {
		msg, err := d.NextMessage()
		require.NoError(t, err)
		if msg == nil {
			return out
		}
		out = append(out, msg)
	}
}

func TestDecoderFragmentation(t *testing.T) {
	stream := sampleStream(t)

	whole := NewDecoder()
	whole.AppendData(stream)
	expected := drain(t, whole)
	require.Len(t, expected, 5)

	t.Run("one byte at a time", func(t *testing.T) {
		d := NewDecoder()
		var got []*RawMessage
		for i := range stream {
			d.AppendData(stream[i : i+1])
			got = append(got, drain(t, d)...)
		}
		assert.Equal(t, expected, got)
		assert.Zero(t, d.Buffered())
	})

	t.Run("uneven chunks", func(t *testing.T) {
		d := NewDecoder()
		var got []*RawMessage
		for i := 0; i < len(stream); i += 7 {
			end := min(i+7, len(stream))
			d.AppendData(stream[i:end])
			got = append(got, drain(t, d)...)
		}
		assert.Equal(t, expected, got)
	})
}

func TestDecoderPartialHeader(t *testing.T) {
	d := NewDecoder()
	d.AppendData([]byte{1, 0, 0})
	msg, err := d.NextMessage()
	assert.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, 3, d.Buffered())
}

func TestDecoderFrameTooSmall(t *testing.T) {
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], 1)
	binary.LittleEndian.PutUint32(header[4:8], 4<<16|2)

	d := NewDecoder()
	d.AppendData(header)
	msg, err := d.NextMessage()
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrFrameTooSmall)
}

func TestHeaderLayout(t *testing.T) {
	data := buildFrame(t, NewMessage(0x01020304, 7).PutUint(1))
	require.Len(t, data, 12)
	assert.Equal(t, uint32(0x01020304), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(12<<16|7), binary.LittleEndian.Uint32(data[4:8]))
}

func TestRoundTrip(t *testing.T) {
	data := buildFrame(t, NewMessage(42, 3).
		PutInt(-17).
		PutUint(0xDEADBEEF).
		PutFixed(Fixed(256)).
		PutFixed(Fixed(-640)).
		PutObject(9).
		PutNewID(11).
		PutString("seat0").
		PutNullString().
		PutArray([]byte{1, 2, 3, 4, 5}))

	d := NewDecoder()
	d.AppendData(data)
	msg, err := d.NextMessage()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, uint32(42), msg.ObjectID)
	assert.Equal(t, uint16(3), msg.Opcode)
	assert.Equal(t, uint16(len(data)), msg.Size)

	r := msg.Args()
	i, err := r.Int()
	require.NoError(t, err)
	assert.Equal(t, int32(-17), i)

	u, err := r.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u)

	f, err := r.Fixed()
	require.NoError(t, err)
	assert.Equal(t, 1.0, f.Float())

	f, err = r.Fixed()
	require.NoError(t, err)
	assert.Equal(t, -2.5, f.Float())

	obj, err := r.Object()
	require.NoError(t, err)
	assert.Equal(t, uint32(9), obj)

	id, err := r.NewID()
	require.NoError(t, err)
	assert.Equal(t, uint32(11), id)

	s, err := r.String()
	require.NoError(t, err)
	assert.Equal(t, "seat0", s)

	s, null, err := r.NullableString()
	require.NoError(t, err)
	assert.True(t, null)
	assert.Empty(t, s)

	arr, err := r.Array()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, arr)
	assert.Zero(t, r.Remaining())
}

func TestFixedConversion(t *testing.T) {
	tests := []struct {
		raw   Fixed
		value float64
	}{
		{raw: 256, value: 1.0},
		{raw: -640, value: -2.5},
		{raw: 0, value: 0},
		{raw: 1, value: 1.0 / 256},
		{raw: 128, value: 0.5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.value, tt.raw.Float())
		assert.Equal(t, tt.raw, FixedFromFloat(tt.value))
	}

	assert.Equal(t, Fixed(2560), FixedFromInt(10))
	assert.Equal(t, -3, Fixed(-640).Int())
	assert.Equal(t, 1, Fixed(300).Int())
}

func TestStringPadding(t *testing.T) {
	tests := []struct {
		value string
		pad   int
	}{
		{value: "", pad: 3},
		{value: "a", pad: 2},
		{value: "ab", pad: 1},
		{value: "abc", pad: 0},
		{value: "abcd", pad: 3},
		{value: "wl_surface", pad: 1},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			data := buildFrame(t, NewMessage(1, 0).PutString(tt.value))
			payload := data[HeaderSize:]

			n := binary.LittleEndian.Uint32(payload[0:4])
			assert.Equal(t, uint32(len(tt.value)+1), n)
			assert.Len(t, payload, 4+len(tt.value)+1+tt.pad)
			assert.Zero(t, len(payload)%4)
			for _, b := range payload[4+len(tt.value):] {
				assert.Zero(t, b)
			}

			got, err := NewArgReader(payload).String()
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestArgReaderErrors(t *testing.T) {
	le := func(words ...uint32) []byte {
		var out []byte
		for _, w := range words {
			out = binary.LittleEndian.AppendUint32(out, w)
		}
		return out
	}

	tests := []struct {
		name    string
		payload []byte
		read    func(r *ArgReader) error
		want    error
	}{
		{name: "short int", payload: []byte{1, 2}, read: func(r *ArgReader) error { _, err := r.Int(); return err }, want: ErrShortInt},
		{name: "short uint", payload: nil, read: func(r *ArgReader) error { _, err := r.Uint(); return err }, want: ErrShortUint},
		{name: "short fixed", payload: []byte{1}, read: func(r *ArgReader) error { _, err := r.Fixed(); return err }, want: ErrShortFixed},
		{name: "short object", payload: []byte{1, 2, 3}, read: func(r *ArgReader) error { _, err := r.Object(); return err }, want: ErrShortObject},
		{name: "short new_id", payload: nil, read: func(r *ArgReader) error { _, err := r.NewID(); return err }, want: ErrShortNewID},
		{name: "short string length", payload: []byte{5}, read: func(r *ArgReader) error { _, err := r.String(); return err }, want: ErrShortString},
		{name: "short string body", payload: le(16, 0x41414141), read: func(r *ArgReader) error { _, err := r.String(); return err }, want: ErrShortString},
		{name: "missing padding", payload: append(le(2), 'a', 0), read: func(r *ArgReader) error { _, err := r.String(); return err }, want: ErrStringPadding},
		{name: "dirty padding", payload: append(le(2), 'a', 0, 0, 9), read: func(r *ArgReader) error { _, err := r.String(); return err }, want: ErrStringPadding},
		{name: "missing terminator", payload: append(le(4), 'a', 'b', 'c', 'd'), read: func(r *ArgReader) error { _, err := r.String(); return err }, want: ErrStringNotTerminated},
		{name: "invalid utf8", payload: append(le(3), 0xff, 0xfe, 0, 0), read: func(r *ArgReader) error { _, err := r.String(); return err }, want: ErrStringInvalidUTF8},
		{name: "short array", payload: le(8, 1), read: func(r *ArgReader) error { _, err := r.Array(); return err }, want: ErrShortArray},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read(NewArgReader(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, "buffer too small for i32", ErrShortInt.Error())
}

func TestBuildTooLarge(t *testing.T) {
	_, err := NewMessage(1, 0).PutArray(make([]byte, MaxMessageSize)).Build()
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestFDQueue(t *testing.T) {
	var q FDQueue
	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrNoFD)

	q.Push(7, 8)
	fd, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 7, fd)
	assert.Equal(t, 1, q.Len())

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	dup, err := unix.Dup(int(w.Fd()))
	require.NoError(t, err)
	q = FDQueue{}
	q.Push(dup)
	q.CloseAll()
	assert.Zero(t, q.Len())
	assert.Error(t, unix.Close(dup))
}

func socketPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	wrap := func(fd int) *Conn {
		f := os.NewFile(uintptr(fd), "wayland")
		c, err := net.FileConn(f)
		require.NoError(t, err)
		f.Close()
		uc, ok := c.(*net.UnixConn)
		require.True(t, ok)
		return NewConn(uc)
	}
	a, b := wrap(fds[0]), wrap(fds[1])
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestConnPassesDescriptors(t *testing.T) {
	a, b := socketPair(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	frame, err := NewMessage(5, 0).PutUint(1).PutFD(int(w.Fd())).Build()
	require.NoError(t, err)
	require.NoError(t, a.WriteMsg(frame.Data, frame.FDs))

	buf := make([]byte, 64)
	n, fds, err := b.ReadMsg(buf)
	require.NoError(t, err)
	assert.Equal(t, len(frame.Data), n)
	require.Len(t, fds, 1)

	received := os.NewFile(uintptr(fds[0]), "pipe")
	defer received.Close()
	_, err = received.Write([]byte("ok"))
	require.NoError(t, err)

	got := make([]byte, 2)
	_, err = r.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))

	pid, err := b.PeerPID()
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), pid)
}
