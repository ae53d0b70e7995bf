package input

import (
	"sort"
	"sync"

	"github.com/bnema/waycore/internal/logger"
	"github.com/bnema/waycore/internal/registry"
	"github.com/bnema/waycore/internal/surface"
)

// ResourceID names a per-client seat resource.
type ResourceID struct {
	Client registry.ClientID
	Object uint32
}

// Cursor is the image a client asked for while it holds pointer focus.
type Cursor struct {
	Surface  surface.ID
	HotspotX int32
	HotspotY int32
	Hidden   bool
}

// Pointer is a wl_pointer resource.
type Pointer struct {
	ID      ResourceID
	Version uint32

	// EnterSerial is the serial of the last enter sent to this pointer,
	// zero before the first enter.
	EnterSerial uint32
	Cursor      *Cursor
}

// Keyboard is a wl_keyboard resource.
type Keyboard struct {
	ID      ResourceID
	Version uint32
}

// Touch is a wl_touch resource.
type Touch struct {
	ID      ResourceID
	Version uint32
}

// Seat tracks the pointer, keyboard and touch resources of every client.
type Seat struct {
	mu        sync.RWMutex
	name      string
	pointers  map[ResourceID]*Pointer
	keyboards map[ResourceID]*Keyboard
	touches   map[ResourceID]*Touch
}

// NewSeat returns an empty seat.
func NewSeat(name string) *Seat {
	return &Seat{
		name:      name,
		pointers:  make(map[ResourceID]*Pointer),
		keyboards: make(map[ResourceID]*Keyboard),
		touches:   make(map[ResourceID]*Touch),
	}
}

// Name returns the seat name advertised in wl_seat.name.
func (s *Seat) Name() string {
	return s.name
}

// AddPointer records a wl_pointer created by wl_seat.get_pointer.
func (s *Seat) AddPointer(id ResourceID, version uint32) *Pointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &Pointer{ID: id, Version: version}
	s.pointers[id] = p
	return p
}

// Pointer returns a pointer resource.
func (s *Seat) Pointer(id ResourceID) (*Pointer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pointers[id]
	return p, ok
}

// ReleasePointer forgets a pointer resource. Releasing an unknown pointer
// logs a warning and reports false.
func (s *Seat) ReleasePointer(id ResourceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pointers[id]; !ok {
		logger.Warnf("Released pointer %d of client %d is not tracked", id.Object, id.Client)
		return false
	}
	delete(s.pointers, id)
	return true
}

// Pointers returns a client's pointer resources ordered by object id.
func (s *Seat) Pointers(client registry.ClientID) []*Pointer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Pointer
	for id, p := range s.pointers {
		if id.Client == client {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Object < out[j].ID.Object })
	return out
}

// AddKeyboard records a wl_keyboard.
func (s *Seat) AddKeyboard(id ResourceID, version uint32) *Keyboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := &Keyboard{ID: id, Version: version}
	s.keyboards[id] = k
	return k
}

// ReleaseKeyboard forgets a keyboard resource.
func (s *Seat) ReleaseKeyboard(id ResourceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keyboards[id]; !ok {
		logger.Warnf("Released keyboard %d of client %d is not tracked", id.Object, id.Client)
		return false
	}
	delete(s.keyboards, id)
	return true
}

// Keyboards returns a client's keyboard resources ordered by object id.
func (s *Seat) Keyboards(client registry.ClientID) []*Keyboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Keyboard
	for id, k := range s.keyboards {
		if id.Client == client {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Object < out[j].ID.Object })
	return out
}

// AddTouch records a wl_touch.
func (s *Seat) AddTouch(id ResourceID, version uint32) *Touch {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Touch{ID: id, Version: version}
	s.touches[id] = t
	return t
}

// ReleaseTouch forgets a touch resource.
func (s *Seat) ReleaseTouch(id ResourceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.touches[id]; !ok {
		logger.Warnf("Released touch %d of client %d is not tracked", id.Object, id.Client)
		return false
	}
	delete(s.touches, id)
	return true
}

// Touches returns a client's touch resources ordered by object id.
func (s *Seat) Touches(client registry.ClientID) []*Touch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Touch
	for id, t := range s.touches {
		if id.Client == client {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Object < out[j].ID.Object })
	return out
}

// NoteEnter records the serial of an enter sent to a client's pointers.
func (s *Seat) NoteEnter(client registry.ClientID, serial uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pointers {
		if id.Client == client {
			p.EnterSerial = serial
		}
	}
}

// NotePointerEnter records the serial of an enter sent to one pointer.
func (s *Seat) NotePointerEnter(id ResourceID, serial uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pointers[id]; ok {
		p.EnterSerial = serial
	}
}

// SetCursor handles wl_pointer.set_cursor. Hiding the cursor (a nil
// surface) is accepted with any serial. Showing a surface requires the
// serial of the last enter and a surface that can take the cursor role.
// Rejected requests are ignored and report false.
func (s *Seat) SetCursor(id ResourceID, serial uint32, surf *surface.Surface, hotspotX, hotspotY int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pointers[id]
	if !ok {
		logger.Warnf("set_cursor on untracked pointer %d of client %d", id.Object, id.Client)
		return false
	}

	// The serial is not checked when hiding the cursor.
	if surf == nil {
		p.Cursor = &Cursor{Hidden: true}
		return true
	}

	if p.EnterSerial == 0 || serial != p.EnterSerial {
		logger.Debugf("[INPUT] Ignoring set_cursor with stale serial %d (enter was %d)", serial, p.EnterSerial)
		return false
	}
	if err := surf.SetRole(surface.RoleCursor); err != nil {
		logger.Debugf("[INPUT] Ignoring set_cursor: %v", err)
		return false
	}
	p.Cursor = &Cursor{Surface: surf.ID(), HotspotX: hotspotX, HotspotY: hotspotY}
	return true
}

// RemoveClient drops every resource of a disconnected client.
func (s *Seat) RemoveClient(client registry.ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.pointers {
		if id.Client == client {
			delete(s.pointers, id)
		}
	}
	for id := range s.keyboards {
		if id.Client == client {
			delete(s.keyboards, id)
		}
	}
	for id := range s.touches {
		if id.Client == client {
			delete(s.touches, id)
		}
	}
}

// Counts returns the number of tracked pointers, keyboards and touches.
func (s *Seat) Counts() (pointers, keyboards, touches int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pointers), len(s.keyboards), len(s.touches)
}
