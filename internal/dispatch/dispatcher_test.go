package dispatch

import (
	"errors"
	"testing"

	"github.com/bnema/waycore/internal/protocol"
	"github.com/bnema/waycore/internal/registry"
	"github.com/bnema/waycore/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type sentFrame struct {
	client registry.ClientID
	msg    *wire.RawMessage
	fds    []int
}

type fakeTransport struct {
	sent   []sentFrame
	closed []registry.ClientID
}

func (f *fakeTransport) Send(client registry.ClientID, frame wire.Frame) error {
	d := wire.NewDecoder()
	d.AppendData(frame.Data)
	msg, err := d.NextMessage()
	if err != nil {
		return err
	}
	f.sent = append(f.sent, sentFrame{client: client, msg: msg, fds: frame.FDs})
	return nil
}

func (f *fakeTransport) Close(client registry.ClientID) {
	f.closed = append(f.closed, client)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeTransport) {
	t.Helper()
	store, err := protocol.NewCoreStore()
	require.NoError(t, err)
	tr := &fakeTransport{}
	d := New(store, registry.New(), tr)
	return d, tr
}

func connect(t *testing.T, d *Dispatcher, client registry.ClientID) {
	t.Helper()
	require.NoError(t, d.HandleEvent(NewClient{Client: client}))
}

func frame(t *testing.T, b *wire.MessageBuilder) *wire.RawMessage {
	t.Helper()
	f, err := b.Build()
	require.NoError(t, err)
	d := wire.NewDecoder()
	d.AppendData(f.Data)
	msg, err := d.NextMessage()
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}

func requireProtocolError(t *testing.T, err error, code uint32) *ProtocolError {
	t.Helper()
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr), "expected protocol error, got %v", err)
	assert.Equal(t, code, perr.Code)
	return perr
}

func TestDispatchRejections(t *testing.T) {
	d, _ := newTestDispatcher(t)
	connect(t, d, 1)
	d.RegisterHandler(protocol.WlSurface, HandlerFunc(func(*Request) error { return nil }))
	_, err := d.Registry().RegisterObject(1, 3, protocol.WlSurface, 6)
	require.NoError(t, err)

	tests := []struct {
		name    string
		msg     *wire.RawMessage
		code    uint32
		message string
	}{
		{
			name:    "null object",
			msg:     frame(t, wire.NewMessage(0, 0)),
			code:    protocol.DisplayErrorInvalidObject,
			message: "message to null object",
		},
		{
			name:    "unknown object",
			msg:     frame(t, wire.NewMessage(77, 0)),
			code:    protocol.DisplayErrorInvalidObject,
			message: "unknown object 77",
		},
		{
			name:    "unknown opcode",
			msg:     frame(t, wire.NewMessage(3, 42)),
			code:    protocol.DisplayErrorInvalidMethod,
			message: "unknown opcode 42 for wl_surface@3",
		},
		{
			name:    "codec error is forwarded verbatim",
			msg:     frame(t, wire.NewMessage(3, 2).PutInt(0).PutInt(0)),
			code:    protocol.DisplayErrorInvalidMethod,
			message: "buffer too small for i32",
		},
		{
			name:    "wrong object interface",
			msg:     frame(t, wire.NewMessage(3, 1).PutObject(1).PutInt(0).PutInt(0)),
			code:    protocol.DisplayErrorInvalidObject,
			message: "object 1 is a wl_display, attach.buffer expects wl_buffer",
		},
		{
			name:    "missing object argument",
			msg:     frame(t, wire.NewMessage(3, 1).PutObject(99).PutInt(0).PutInt(0)),
			code:    protocol.DisplayErrorInvalidObject,
			message: "invalid object 99 in argument buffer of attach",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Dispatch(1, tt.msg)
			perr := requireProtocolError(t, err, tt.code)
			assert.Equal(t, tt.message, perr.Message)
		})
	}
}

func TestDispatchVersionGate(t *testing.T) {
	store, err := protocol.NewCoreStore()
	require.NoError(t, err)

	checked := 0
	for _, spec := range store.Interfaces() {
		for _, req := range spec.Requests {
			if req.Since <= 1 {
				continue
			}
			checked++
			name := spec.Name + "." + req.Name

			t.Run(name, func(t *testing.T) {
				d, _ := newTestDispatcher(t)
				connect(t, d, 1)
				called := false
				d.RegisterHandler(spec.Name, HandlerFunc(func(*Request) error {
					called = true
					return nil
				}))
				_, err := d.Registry().RegisterObject(1, 10, spec.Name, req.Since-1)
				require.NoError(t, err)

				err = d.Dispatch(1, frame(t, wire.NewMessage(10, req.Opcode)))
				perr := requireProtocolError(t, err, protocol.DisplayErrorInvalidMethod)
				assert.Contains(t, perr.Message, "requires version")
				assert.False(t, called)
			})
		}
	}
	assert.GreaterOrEqual(t, checked, 10)
}

func TestDispatchCreatesObjects(t *testing.T) {
	d, tr := newTestDispatcher(t)
	connect(t, d, 1)

	var got *Request
	d.RegisterHandler(protocol.WlCompositor, HandlerFunc(func(req *Request) error {
		got = req
		return nil
	}))
	_, err := d.Registry().RegisterObject(1, 2, protocol.WlCompositor, 5)
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(1, frame(t, wire.NewMessage(2, 0).PutNewID(3))))
	require.NotNil(t, got)
	assert.Equal(t, "create_surface", got.Spec.Name)
	assert.Equal(t, uint32(3), got.Args.NewID(0))
	require.Len(t, got.Created, 1)

	entry, ok := d.Registry().GetObject(1, 3)
	require.True(t, ok)
	assert.Equal(t, registry.ObjectEntry{ID: 3, Interface: protocol.WlSurface, Version: 5}, entry)

	t.Run("reused id is rejected", func(t *testing.T) {
		err := d.Dispatch(1, frame(t, wire.NewMessage(2, 0).PutNewID(3)))
		requireProtocolError(t, err, protocol.DisplayErrorInvalidObject)
	})

	t.Run("server range id is rejected", func(t *testing.T) {
		err := d.Dispatch(1, frame(t, wire.NewMessage(2, 0).PutNewID(ServerIDStart)))
		requireProtocolError(t, err, protocol.DisplayErrorInvalidObject)
	})

	t.Run("handler failure rolls back", func(t *testing.T) {
		d.RegisterHandler(protocol.WlCompositor, HandlerFunc(func(req *Request) error {
			return req.Errorf(protocol.DisplayErrorNoMemory, "out of surfaces")
		}))
		err := d.Dispatch(1, frame(t, wire.NewMessage(2, 0).PutNewID(4)))
		requireProtocolError(t, err, protocol.DisplayErrorNoMemory)
		_, ok := d.Registry().GetObject(1, 4)
		assert.False(t, ok)
	})

	assert.Empty(t, tr.sent)
}

func TestDispatchUntypedBind(t *testing.T) {
	d, _ := newTestDispatcher(t)
	connect(t, d, 1)

	d.RegisterHandler(protocol.WlRegistry, HandlerFunc(func(req *Request) error {
		iface, version := req.Args.BindTarget(1)
		assert.Equal(t, protocol.WlSeat, iface)
		assert.Equal(t, uint32(7), version)
		return nil
	}))
	_, err := d.Registry().RegisterObject(1, 2, protocol.WlRegistry, 1)
	require.NoError(t, err)

	msg := frame(t, wire.NewMessage(2, 0).PutUint(4).PutString(protocol.WlSeat).PutUint(7).PutNewID(8))
	require.NoError(t, d.Dispatch(1, msg))

	entry, ok := d.Registry().GetObject(1, 8)
	require.True(t, ok)
	assert.Equal(t, protocol.WlSeat, entry.Interface)
	assert.Equal(t, uint32(7), entry.Version)
}

func TestDispatchDestructor(t *testing.T) {
	d, tr := newTestDispatcher(t)
	connect(t, d, 1)
	d.RegisterHandler(protocol.WlRegion, HandlerFunc(func(*Request) error { return nil }))
	_, err := d.Registry().RegisterObject(1, 5, protocol.WlRegion, 1)
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(1, frame(t, wire.NewMessage(5, 0))))

	_, ok := d.Registry().GetObject(1, 5)
	assert.False(t, ok)

	require.Len(t, tr.sent, 1)
	deleteID := tr.sent[0].msg
	assert.Equal(t, DisplayID, deleteID.ObjectID)
	assert.Equal(t, displayDeleteID, deleteID.Opcode)
	id, err := deleteID.Args().Uint()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), id)
}

func TestMissingHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)
	connect(t, d, 1)
	_, err := d.Registry().RegisterObject(1, 2, protocol.WlCompositor, 6)
	require.NoError(t, err)

	err = d.Dispatch(1, frame(t, wire.NewMessage(2, 0).PutNewID(3)))
	requireProtocolError(t, err, protocol.DisplayErrorImplementation)
	_, ok := d.Registry().GetObject(1, 3)
	assert.False(t, ok)
}

func TestFatalErrorDisconnects(t *testing.T) {
	d, tr := newTestDispatcher(t)
	connect(t, d, 1)
	connect(t, d, 2)

	var cleaned []registry.ClientID
	d.OnDisconnect(func(c registry.ClientID) { cleaned = append(cleaned, c) })

	err := d.HandleEvent(ClientMessage{Client: 1, Message: frame(t, wire.NewMessage(0, 0))})
	require.Error(t, err)

	require.Len(t, tr.sent, 1)
	sent := tr.sent[0]
	assert.Equal(t, registry.ClientID(1), sent.client)
	assert.Equal(t, displayError, sent.msg.Opcode)

	r := sent.msg.Args()
	objectID, _ := r.Object()
	code, _ := r.Uint()
	message, _ := r.String()
	assert.Equal(t, DisplayID, objectID)
	assert.Equal(t, protocol.DisplayErrorInvalidObject, code)
	assert.Equal(t, "message to null object", message)

	assert.Equal(t, []registry.ClientID{1}, tr.closed)
	assert.Equal(t, []registry.ClientID{1}, cleaned)
	assert.False(t, d.Registry().HasClient(1))
	assert.True(t, d.Registry().HasClient(2))

	// The transport's own disconnect notice arrives later and is a no-op
	require.NoError(t, d.HandleEvent(ClientDisconnected{Client: 1}))
	assert.Equal(t, []registry.ClientID{1}, cleaned)

	// Late messages for the dead client are dropped
	require.NoError(t, d.HandleEvent(ClientMessage{Client: 1, Message: frame(t, wire.NewMessage(1, 0).PutNewID(2))}))
	assert.Len(t, tr.sent, 1)
}

func TestDisconnectCleanupSurvivesPanics(t *testing.T) {
	d, _ := newTestDispatcher(t)
	connect(t, d, 1)

	ran := false
	d.OnDisconnect(func(registry.ClientID) { panic("half built") })
	d.OnDisconnect(func(registry.ClientID) { ran = true })

	assert.NotPanics(t, func() {
		require.NoError(t, d.HandleEvent(ClientDisconnected{Client: 1}))
	})
	assert.True(t, ran)
	assert.False(t, d.Registry().HasClient(1))
}

func TestRegisterExtension(t *testing.T) {
	d, _ := newTestDispatcher(t)

	ext := &protocol.InterfaceSpec{
		Name:    "ext_test_manager",
		Version: 1,
		Requests: []protocol.RequestSpec{
			{Name: "ping", Args: []protocol.ArgumentSpec{{Name: "value", Type: protocol.ArgUint}}},
		},
	}
	var pinged uint32
	require.NoError(t, d.RegisterExtension([]*protocol.InterfaceSpec{ext}, map[string]Handler{
		"ext_test_manager": HandlerFunc(func(req *Request) error {
			pinged = req.Args.Uint(0)
			return nil
		}),
	}))

	connect(t, d, 1)
	assert.True(t, d.Store().Sealed())

	_, err := d.Registry().RegisterObject(1, 9, "ext_test_manager", 1)
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(1, frame(t, wire.NewMessage(9, 0).PutUint(42))))
	assert.Equal(t, uint32(42), pinged)

	err = d.RegisterExtension(nil, nil)
	assert.ErrorIs(t, err, ErrStarted)
}

func TestPostEvent(t *testing.T) {
	d, tr := newTestDispatcher(t)
	connect(t, d, 1)
	_, err := d.Registry().RegisterObject(1, 4, protocol.WlPointer, 4)
	require.NoError(t, err)
	_, err = d.Registry().RegisterObject(1, 5, protocol.WlCallback, 1)
	require.NoError(t, err)

	t.Run("encodes against the signature", func(t *testing.T) {
		require.NoError(t, d.PostEvent(1, 4, 2, uint32(1000), wire.FixedFromFloat(1.5), wire.FixedFromFloat(-2.5)))
		msg := tr.sent[len(tr.sent)-1].msg
		r := msg.Args()
		ts, _ := r.Uint()
		x, _ := r.Fixed()
		y, _ := r.Fixed()
		assert.Equal(t, uint32(1000), ts)
		assert.Equal(t, 1.5, x.Float())
		assert.Equal(t, -2.5, y.Float())
	})

	t.Run("rejects events newer than the object", func(t *testing.T) {
		err := d.PostEvent(1, 4, 5)
		assert.ErrorIs(t, err, ErrEventVersion)
		assert.False(t, d.EventSupported(1, 4, 5))
		assert.True(t, d.EventSupported(1, 4, 2))
	})

	t.Run("rejects mismatched arguments", func(t *testing.T) {
		err := d.PostEvent(1, 4, 2, uint32(1), 1.5, 2.5)
		assert.ErrorIs(t, err, ErrEventArguments)
		err = d.PostEvent(1, 4, 2)
		assert.ErrorIs(t, err, ErrEventArguments)
	})

	t.Run("destructor events free the object", func(t *testing.T) {
		before := len(tr.sent)
		require.NoError(t, d.PostEvent(1, 5, 0, uint32(7)))
		_, ok := d.Registry().GetObject(1, 5)
		assert.False(t, ok)
		require.Len(t, tr.sent, before+2)
		assert.Equal(t, DisplayID, tr.sent[before+1].msg.ObjectID)
	})

	t.Run("unknown object", func(t *testing.T) {
		assert.ErrorIs(t, d.PostEvent(1, 99, 0), ErrUnknownObject)
		assert.ErrorIs(t, d.PostEvent(3, 1, 0), ErrUnknownClient)
	})

	t.Run("rejected events close descriptors", func(t *testing.T) {
		_, err := d.Registry().RegisterObject(1, 6, protocol.WlKeyboard, 1)
		require.NoError(t, err)

		tests := []struct {
			name   string
			client registry.ClientID
			object uint32
			opcode uint16
			want   error
		}{
			{"unknown client", 3, 6, 0, ErrUnknownClient},
			{"unknown object", 1, 42, 0, ErrUnknownObject},
			{"unknown event", 1, 6, 40, ErrUnknownEvent},
			{"event too new", 1, 6, 5, ErrEventVersion},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				fd := openNull(t)
				err := d.PostEvent(tt.client, tt.object, tt.opcode, uint32(1), fd, uint32(0))
				assert.ErrorIs(t, err, tt.want)
				assert.False(t, fdOpen(fd), "descriptor still open")
			})
		}
	})
}

func openNull(t *testing.T) int {
	t.Helper()
	fd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		if fdOpen(fd) {
			unix.Close(fd)
		}
	})
	return fd
}

func fdOpen(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}
