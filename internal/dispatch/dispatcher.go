// Package dispatch validates client requests against the protocol store and
// routes them to per-interface handlers. It is the only path by which
// client requests reach object state.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/bnema/waycore/internal/logger"
	"github.com/bnema/waycore/internal/protocol"
	"github.com/bnema/waycore/internal/registry"
	"github.com/bnema/waycore/internal/wire"
)

// DisplayID is the object id of wl_display in every client.
const DisplayID uint32 = 1

// ServerIDStart is the first id of the server-allocated range. Clients may
// not create objects at or above it.
const ServerIDStart uint32 = 0xff000000

// Transport is the client write path.
type Transport interface {
	Send(client registry.ClientID, frame wire.Frame) error
	Close(client registry.ClientID)
}

// Handler executes validated requests for one interface.
type Handler interface {
	HandleRequest(req *Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *Request) error

func (f HandlerFunc) HandleRequest(req *Request) error {
	return f(req)
}

// Request is a fully validated request ready for execution.
type Request struct {
	Client  registry.ClientID
	Object  registry.ObjectEntry
	Spec    *protocol.RequestSpec
	Args    Args
	Created []registry.ObjectEntry

	d *Dispatcher
}

// Dispatcher returns the dispatcher that produced the request.
func (r *Request) Dispatcher() *Dispatcher {
	return r.d
}

// Errorf builds a protocol error against the request's target object.
func (r *Request) Errorf(code uint32, format string, args ...interface{}) *ProtocolError {
	return NewProtocolError(r.Object.ID, code, format, args...)
}

type clientState struct {
	fds wire.FDQueue
}

// Dispatcher owns the per-client dispatch state. It is not safe for
// concurrent use; the reactor goroutine drives it.
type Dispatcher struct {
	store     *protocol.Store
	registry  *registry.Registry
	transport Transport

	handlers     map[string]Handler
	clients      map[registry.ClientID]*clientState
	onDisconnect []func(registry.ClientID)
	started      bool
}

// New creates a dispatcher over the given store and registry.
func New(store *protocol.Store, reg *registry.Registry, transport Transport) *Dispatcher {
	return &Dispatcher{
		store:     store,
		registry:  reg,
		transport: transport,
		handlers:  make(map[string]Handler),
		clients:   make(map[registry.ClientID]*clientState),
	}
}

// Store returns the protocol store.
func (d *Dispatcher) Store() *protocol.Store {
	return d.store
}

// Registry returns the object registry.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// RegisterHandler installs the handler for an interface, replacing any
// previous one.
func (d *Dispatcher) RegisterHandler(iface string, h Handler) {
	d.handlers[iface] = h
}

// RegisterExtension adds extension interfaces and their handlers. It must
// run before the first client connects.
func (d *Dispatcher) RegisterExtension(specs []*protocol.InterfaceSpec, handlers map[string]Handler) error {
	if d.started {
		return ErrStarted
	}
	for _, spec := range specs {
		if err := d.store.Register(spec); err != nil {
			return fmt.Errorf("failed to register extension: %w", err)
		}
	}
	for iface, h := range handlers {
		d.RegisterHandler(iface, h)
	}
	return nil
}

// OnDisconnect registers a cleanup routine run when a client goes away.
// Listeners run in registration order before the client's objects are
// dropped from the registry.
func (d *Dispatcher) OnDisconnect(fn func(client registry.ClientID)) {
	d.onDisconnect = append(d.onDisconnect, fn)
}

// Connected reports whether client has a live object space.
func (d *Dispatcher) Connected(client registry.ClientID) bool {
	_, ok := d.clients[client]
	return ok
}

// Dispatch validates msg and forwards it to the interface handler. Any
// returned error is fatal for the client.
func (d *Dispatcher) Dispatch(client registry.ClientID, msg *wire.RawMessage) error {
	state, ok := d.clients[client]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownClient, client)
	}

	if msg.ObjectID == 0 {
		return invalidObject(DisplayID, "message to null object")
	}

	entry, ok := d.registry.GetObject(client, msg.ObjectID)
	if !ok {
		return invalidObject(msg.ObjectID, "unknown object %d", msg.ObjectID)
	}

	spec, ok := d.store.RequestSpec(entry.Interface, msg.Opcode)
	if !ok {
		return invalidMethod(msg.ObjectID, "unknown opcode %d for %s@%d", msg.Opcode, entry.Interface, msg.ObjectID)
	}

	if entry.Version < spec.Since {
		return invalidMethod(msg.ObjectID, "%s.%s requires version %d but %s@%d has version %d",
			entry.Interface, spec.Name, spec.Since, entry.Interface, msg.ObjectID, entry.Version)
	}

	args, err := decodeArgs(spec, msg.Payload, &state.fds)
	if err != nil {
		return invalidMethod(msg.ObjectID, "%s", err.Error())
	}

	if err := d.checkObjects(client, msg.ObjectID, spec, args); err != nil {
		args.closeFDs()
		return err
	}

	created, err := d.createObjects(client, entry, spec, args)
	if err != nil {
		args.closeFDs()
		return err
	}

	h, ok := d.handlers[entry.Interface]
	if !ok {
		d.rollback(client, created)
		args.closeFDs()
		return NewProtocolError(msg.ObjectID, protocol.DisplayErrorImplementation, "no handler for %s", entry.Interface)
	}

	logger.Debugf("[DISPATCH] client %d -> %s@%d.%s", client, entry.Interface, entry.ID, spec.Name)

	req := &Request{
		Client:  client,
		Object:  entry,
		Spec:    spec,
		Args:    args,
		Created: created,
		d:       d,
	}
	if err := h.HandleRequest(req); err != nil {
		d.rollback(client, created)
		return err
	}

	if spec.Destructor {
		d.DestroyObject(client, entry.ID)
	}
	return nil
}

func (d *Dispatcher) checkObjects(client registry.ClientID, target uint32, spec *protocol.RequestSpec, args Args) error {
	for i, as := range spec.Args {
		if as.Type != protocol.ArgObject {
			if as.Type == protocol.ArgString && args[i].Null && !as.AllowNull {
				return invalidMethod(target, "null string for non-nullable argument %s of %s", as.Name, spec.Name)
			}
			continue
		}

		id := args[i].word
		if id == 0 {
			if !as.AllowNull {
				return invalidMethod(target, "null object for non-nullable argument %s of %s", as.Name, spec.Name)
			}
			continue
		}
		obj, ok := d.registry.GetObject(client, id)
		if !ok {
			return invalidObject(target, "invalid object %d in argument %s of %s", id, as.Name, spec.Name)
		}
		if as.Interface != "" && obj.Interface != as.Interface {
			return invalidObject(target, "object %d is a %s, %s.%s expects %s", id, obj.Interface, spec.Name, as.Name, as.Interface)
		}
	}
	return nil
}

func (d *Dispatcher) createObjects(client registry.ClientID, parent registry.ObjectEntry, spec *protocol.RequestSpec, args Args) ([]registry.ObjectEntry, error) {
	var created []registry.ObjectEntry
	for i, as := range spec.Args {
		if as.Type != protocol.ArgNewID {
			continue
		}

		id := args[i].word
		if id == 0 || id >= ServerIDStart {
			d.rollback(client, created)
			return nil, invalidObject(parent.ID, "invalid new id %d", id)
		}

		iface, version := as.Interface, parent.Version
		if as.Untyped() {
			iface, version = args[i].Interface, args[i].Version
			if iface == "" || version == 0 {
				d.rollback(client, created)
				return nil, invalidMethod(parent.ID, "bind without interface or version")
			}
		}

		entry, err := d.registry.RegisterObject(client, id, iface, version)
		if err != nil {
			d.rollback(client, created)
			return nil, invalidObject(parent.ID, "invalid new id %d: %v", id, err)
		}
		created = append(created, entry)
	}
	return created, nil
}

func (d *Dispatcher) rollback(client registry.ClientID, created []registry.ObjectEntry) {
	for _, e := range created {
		d.registry.RemoveObject(client, e.ID)
	}
}

// DestroyObject removes an object and tells the client its id is free.
func (d *Dispatcher) DestroyObject(client registry.ClientID, id uint32) {
	if _, ok := d.registry.RemoveObject(client, id); !ok {
		return
	}
	if id >= ServerIDStart {
		return
	}
	if err := d.PostEvent(client, DisplayID, displayDeleteID, id); err != nil {
		logger.Debugf("[DISPATCH] delete_id %d for client %d: %v", id, client, err)
	}
}

// PostError reports a fatal protocol error and disconnects the client.
func (d *Dispatcher) PostError(client registry.ClientID, perr *ProtocolError) {
	if !d.Connected(client) {
		return
	}
	logger.Warnf("[DISPATCH] client %d: %v", client, perr)

	if err := d.PostEvent(client, DisplayID, displayError, perr.ObjectID, perr.Code, perr.Message); err != nil {
		logger.Debugf("[DISPATCH] failed to send error to client %d: %v", client, err)
	}
	d.transport.Close(client)
	d.disconnect(client)
}

func (d *Dispatcher) connect(client registry.ClientID) error {
	if !d.started {
		d.started = true
		d.store.Seal()
	}
	if err := d.registry.AddClient(client); err != nil {
		return err
	}
	if _, err := d.registry.RegisterObject(client, DisplayID, protocol.WlDisplay, 1); err != nil {
		d.registry.RemoveClient(client)
		return err
	}
	d.clients[client] = &clientState{}
	logger.Debugf("[DISPATCH] client %d connected", client)
	return nil
}

// disconnect runs the cleanup listeners and drops the client's object
// space. It is idempotent and tolerates partially connected clients.
func (d *Dispatcher) disconnect(client registry.ClientID) {
	state, ok := d.clients[client]
	delete(d.clients, client)

	if ok {
		for _, fn := range d.onDisconnect {
			d.runListener(client, fn)
		}
		state.fds.CloseAll()
	}

	removed := d.registry.RemoveClient(client)
	if ok {
		logger.Debugf("[DISPATCH] client %d disconnected, dropped %d objects", client, len(removed))
	}
}

func (d *Dispatcher) runListener(client registry.ClientID, fn func(registry.ClientID)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[DISPATCH] disconnect cleanup for client %d panicked: %v", client, r)
		}
	}()
	fn(client)
}

// HandleEvent processes one reactor event. The returned error is the
// fatal error that ended a client, if any.
func (d *Dispatcher) HandleEvent(ev Event) error {
	switch e := ev.(type) {
	case NewClient:
		if err := d.connect(e.Client); err != nil {
			logger.Errorf("[DISPATCH] failed to set up client %d: %v", e.Client, err)
			d.transport.Close(e.Client)
			return err
		}

	case ClientMessage:
		state, ok := d.clients[e.Client]
		if !ok {
			for _, fd := range e.FDs {
				closeFD(fd)
			}
			return nil
		}
		state.fds.Push(e.FDs...)

		if err := d.Dispatch(e.Client, e.Message); err != nil {
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				perr = NewProtocolError(e.Message.ObjectID, protocol.DisplayErrorImplementation, "%v", err)
			}
			d.PostError(e.Client, perr)
			return err
		}

	case ClientDisconnected:
		d.disconnect(e.Client)

	case ServerError:
		logger.Errorf("[DISPATCH] server error: %v", e.Err)
	}
	return nil
}
