// Package registry tracks the protocol objects each client has created.
// Object ids are scoped to one client; nothing is shared across clients.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ClientID identifies one connection.
type ClientID uint64

var (
	ErrUnknownClient = errors.New("unknown client")
	ErrClientExists  = errors.New("client already registered")
	ErrObjectExists  = errors.New("object id already in use")
	ErrNullObject    = errors.New("object id 0 is reserved")
)

// ObjectEntry is one live object. Version is fixed at creation.
type ObjectEntry struct {
	ID        uint32
	Interface string
	Version   uint32
}

type objectSpace struct {
	objects map[uint32]ObjectEntry
}

// Registry holds one object space per connected client.
type Registry struct {
	mu      sync.RWMutex
	clients map[ClientID]*objectSpace
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{clients: make(map[ClientID]*objectSpace)}
}

// AddClient allocates an empty object space for id.
func (r *Registry) AddClient(id ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[id]; exists {
		return fmt.Errorf("%w: %d", ErrClientExists, id)
	}
	r.clients[id] = &objectSpace{objects: make(map[uint32]ObjectEntry)}
	return nil
}

// RemoveClient drops the client and every object it owns, returning the
// dropped entries sorted by id. Removing an unknown client is a no-op.
func (r *Registry) RemoveClient(id ClientID) []ObjectEntry {
	r.mu.Lock()
	space, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return sortedEntries(space.objects)
}

// HasClient reports whether id is connected.
func (r *Registry) HasClient(id ClientID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[id]
	return ok
}

// Clients returns the connected client ids in ascending order.
func (r *Registry) Clients() []ClientID {
	r.mu.RLock()
	out := make([]ClientID, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RegisterObject records a new object. It fails if the id is 0 or already
// names a live object of the same client.
func (r *Registry) RegisterObject(client ClientID, id uint32, iface string, version uint32) (ObjectEntry, error) {
	if id == 0 {
		return ObjectEntry{}, ErrNullObject
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	space, ok := r.clients[client]
	if !ok {
		return ObjectEntry{}, fmt.Errorf("%w: %d", ErrUnknownClient, client)
	}
	if existing, taken := space.objects[id]; taken {
		return ObjectEntry{}, fmt.Errorf("%w: %d is a %s", ErrObjectExists, id, existing.Interface)
	}

	entry := ObjectEntry{ID: id, Interface: iface, Version: version}
	space.objects[id] = entry
	return entry, nil
}

// GetObject looks up a live object.
func (r *Registry) GetObject(client ClientID, id uint32) (ObjectEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	space, ok := r.clients[client]
	if !ok {
		return ObjectEntry{}, false
	}
	entry, ok := space.objects[id]
	return entry, ok
}

// RemoveObject deletes an object and returns it.
func (r *Registry) RemoveObject(client ClientID, id uint32) (ObjectEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	space, ok := r.clients[client]
	if !ok {
		return ObjectEntry{}, false
	}
	entry, ok := space.objects[id]
	if ok {
		delete(space.objects, id)
	}
	return entry, ok
}

// Objects returns the client's live objects sorted by id.
func (r *Registry) Objects(client ClientID) []ObjectEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	space, ok := r.clients[client]
	if !ok {
		return nil
	}
	return sortedEntries(space.objects)
}

// Count returns the number of live objects a client owns.
func (r *Registry) Count(client ClientID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if space, ok := r.clients[client]; ok {
		return len(space.objects)
	}
	return 0
}

func sortedEntries(objects map[uint32]ObjectEntry) []ObjectEntry {
	out := make([]ObjectEntry, 0, len(objects))
	for _, e := range objects {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
