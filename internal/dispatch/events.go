package dispatch

import (
	"fmt"

	"github.com/bnema/waycore/internal/protocol"
	"github.com/bnema/waycore/internal/registry"
	"github.com/bnema/waycore/internal/wire"
	"golang.org/x/sys/unix"
)

// wl_display event opcodes.
const (
	displayError    uint16 = 0
	displayDeleteID uint16 = 1
)

// Event is something the reactor feeds into the dispatcher.
type Event interface {
	isEvent()
}

// NewClient announces a freshly accepted connection.
type NewClient struct {
	Client registry.ClientID
}

// ClientMessage carries one decoded frame and any descriptors that arrived
// with it.
type ClientMessage struct {
	Client  registry.ClientID
	Message *wire.RawMessage
	FDs     []int
}

// ClientDisconnected reports that a connection closed or failed.
type ClientDisconnected struct {
	Client registry.ClientID
	Err    error
}

// ServerError is a process-wide fault that is not tied to one client.
type ServerError struct {
	Err error
}

func (NewClient) isEvent()          {}
func (ClientMessage) isEvent()      {}
func (ClientDisconnected) isEvent() {}
func (ServerError) isEvent()        {}

func closeFD(fd int) {
	_ = unix.Close(fd)
}

// EventSupported reports whether the object exists and its version has
// the event with the given opcode.
func (d *Dispatcher) EventSupported(client registry.ClientID, objectID uint32, opcode uint16) bool {
	entry, ok := d.registry.GetObject(client, objectID)
	if !ok {
		return false
	}
	spec, ok := d.store.EventSpec(entry.Interface, opcode)
	return ok && entry.Version >= spec.Since
}

// PostEvent encodes an event against its signature and queues it on the
// client transport. Accepted argument types are int32 ints, uint32,
// wire.Fixed, string (nil for a nullable null string), uint32 object and
// new_id ids, []byte arrays and int descriptors; int is reserved for
// descriptors. Descriptors belong to the transport once the frame is built;
// if the event is rejected before that they are closed. A destructor event
// also destroys the object.
func (d *Dispatcher) PostEvent(client registry.ClientID, objectID uint32, opcode uint16, args ...interface{}) error {
	if !d.Connected(client) {
		closeFDArgs(args)
		return fmt.Errorf("%w: %d", ErrUnknownClient, client)
	}
	entry, ok := d.registry.GetObject(client, objectID)
	if !ok {
		closeFDArgs(args)
		return fmt.Errorf("%w: %d for client %d", ErrUnknownObject, objectID, client)
	}
	spec, ok := d.store.EventSpec(entry.Interface, opcode)
	if !ok {
		closeFDArgs(args)
		return fmt.Errorf("%w: %s opcode %d", ErrUnknownEvent, entry.Interface, opcode)
	}
	if entry.Version < spec.Since {
		closeFDArgs(args)
		return fmt.Errorf("%w: %s.%s needs version %d, object has %d", ErrEventVersion, entry.Interface, spec.Name, spec.Since, entry.Version)
	}

	frame, err := encodeEvent(objectID, spec, args)
	if err != nil {
		closeFDArgs(args)
		return fmt.Errorf("%s.%s: %w", entry.Interface, spec.Name, err)
	}
	if err := d.transport.Send(client, frame); err != nil {
		return err
	}

	if spec.Destructor {
		d.DestroyObject(client, objectID)
	}
	return nil
}

func encodeEvent(objectID uint32, spec *protocol.EventSpec, args []interface{}) (wire.Frame, error) {
	if len(args) != len(spec.Args) {
		return wire.Frame{}, fmt.Errorf("%w: got %d arguments, want %d", ErrEventArguments, len(args), len(spec.Args))
	}

	b := wire.NewMessage(objectID, spec.Opcode)
	for i, as := range spec.Args {
		mismatch := argMismatch(as, args[i])

		switch as.Type {
		case protocol.ArgInt:
			v, ok := args[i].(int32)
			if !ok {
				return wire.Frame{}, mismatch()
			}
			b.PutInt(v)
		case protocol.ArgUint, protocol.ArgObject, protocol.ArgNewID:
			v, ok := args[i].(uint32)
			if !ok {
				return wire.Frame{}, mismatch()
			}
			if as.Type == protocol.ArgObject && v == 0 && !as.AllowNull {
				return wire.Frame{}, fmt.Errorf("%w: null object for %s", ErrEventArguments, as.Name)
			}
			b.PutUint(v)
		case protocol.ArgFixed:
			v, ok := args[i].(wire.Fixed)
			if !ok {
				return wire.Frame{}, mismatch()
			}
			b.PutFixed(v)
		case protocol.ArgString:
			switch v := args[i].(type) {
			case string:
				b.PutString(v)
			case nil:
				if !as.AllowNull {
					return wire.Frame{}, fmt.Errorf("%w: null string for %s", ErrEventArguments, as.Name)
				}
				b.PutNullString()
			default:
				return wire.Frame{}, mismatch()
			}
		case protocol.ArgArray:
			v, ok := args[i].([]byte)
			if !ok {
				return wire.Frame{}, mismatch()
			}
			b.PutArray(v)
		case protocol.ArgFD:
			v, ok := args[i].(int)
			if !ok {
				return wire.Frame{}, mismatch()
			}
			b.PutFD(v)
		}
	}
	return b.Build()
}

// closeFDArgs closes the descriptors of a rejected event.
func closeFDArgs(args []interface{}) {
	for _, a := range args {
		if fd, ok := a.(int); ok && fd >= 0 {
			closeFD(fd)
		}
	}
}

func argMismatch(as protocol.ArgumentSpec, got interface{}) func() error {
	return func() error {
		return fmt.Errorf("%w: argument %s is %s, got %T", ErrEventArguments, as.Name, as.Type, got)
	}
}
