package input

import (
	"sort"

	"github.com/bnema/waycore/internal/surface"
)

// HistorySize bounds the keyboard focus history.
const HistorySize = 10

// GrabKind says which device class a grab captures.
type GrabKind int

const (
	GrabPointer GrabKind = iota
	GrabKeyboard
)

func (k GrabKind) String() string {
	if k == GrabKeyboard {
		return "keyboard"
	}
	return "pointer"
}

// Grab binds a device class to one surface until released.
type Grab struct {
	Kind    GrabKind
	Surface surface.ID
	Serial  uint32
}

// FocusManager holds the seat focus state. It is owned by the reactor.
type FocusManager struct {
	keyboard *surface.ID
	pointer  *surface.ID
	touch    map[int32]surface.ID
	grabs    []Grab
	history  []surface.ID
}

// NewFocusManager returns a manager with nothing focused.
func NewFocusManager() *FocusManager {
	return &FocusManager{
		touch: make(map[int32]surface.ID),
	}
}

// KeyboardFocus returns the surface with keyboard focus.
func (f *FocusManager) KeyboardFocus() (surface.ID, bool) {
	if f.keyboard == nil {
		return surface.ID{}, false
	}
	return *f.keyboard, true
}

// PointerFocus returns the surface with pointer focus.
func (f *FocusManager) PointerFocus() (surface.ID, bool) {
	if f.pointer == nil {
		return surface.ID{}, false
	}
	return *f.pointer, true
}

// TouchFocus returns the surface a touch point went down on.
func (f *FocusManager) TouchFocus(id int32) (surface.ID, bool) {
	s, ok := f.touch[id]
	return s, ok
}

// TouchPoints returns the active touch point ids in ascending order.
func (f *FocusManager) TouchPoints() []int32 {
	ids := make([]int32, 0, len(f.touch))
	for id := range f.touch {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// History returns the keyboard focus history, most recent first.
func (f *FocusManager) History() []surface.ID {
	return append([]surface.ID(nil), f.history...)
}

// Grabs returns the active grabs in the order they were taken.
func (f *FocusManager) Grabs() []Grab {
	return append([]Grab(nil), f.grabs...)
}

// ActiveGrab returns the grab held for kind, if any.
func (f *FocusManager) ActiveGrab(kind GrabKind) (Grab, bool) {
	for _, g := range f.grabs {
		if g.Kind == kind {
			return g, true
		}
	}
	return Grab{}, false
}

func (f *FocusManager) setKeyboard(id *surface.ID) {
	f.keyboard = id
	if id != nil {
		f.pushHistory(*id)
	}
}

func (f *FocusManager) setPointer(id *surface.ID) {
	f.pointer = id
}

// addGrab records g. A grab of the same kind is replaced, so at most one
// pointer grab is ever active.
func (f *FocusManager) addGrab(g Grab) {
	f.removeGrabs(func(old Grab) bool { return old.Kind == g.Kind })
	f.grabs = append(f.grabs, g)
}

func (f *FocusManager) removeGrabs(match func(Grab) bool) []Grab {
	var removed []Grab
	kept := f.grabs[:0]
	for _, g := range f.grabs {
		if match(g) {
			removed = append(removed, g)
			continue
		}
		kept = append(kept, g)
	}
	f.grabs = kept
	return removed
}

func (f *FocusManager) pushHistory(id surface.ID) {
	out := make([]surface.ID, 0, HistorySize)
	out = append(out, id)
	for _, h := range f.history {
		if h == id {
			continue
		}
		if len(out) == HistorySize {
			break
		}
		out = append(out, h)
	}
	f.history = out
}

// drop removes every reference to surfaces matching fn without sending
// any event.
func (f *FocusManager) drop(match func(surface.ID) bool) {
	if f.keyboard != nil && match(*f.keyboard) {
		f.keyboard = nil
	}
	if f.pointer != nil && match(*f.pointer) {
		f.pointer = nil
	}
	for id, s := range f.touch {
		if match(s) {
			delete(f.touch, id)
		}
	}
	kept := f.history[:0]
	for _, h := range f.history {
		if !match(h) {
			kept = append(kept, h)
		}
	}
	f.history = kept
}
