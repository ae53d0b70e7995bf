package surface

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bnema/waycore/internal/registry"
)

// FrameNotifier delivers wl_callback.done for presented frames and
// destroys the callbacks of surfaces that go away before presenting.
type FrameNotifier interface {
	FrameDone(client registry.ClientID, callbackID uint32, timeMs uint32)
	FrameDropped(client registry.ClientID, callbackID uint32)
}

// Manager owns every surface, keyed by client and object id.
type Manager struct {
	mu       sync.RWMutex
	surfaces map[ID]*Surface

	notifier         FrameNotifier
	destroyListeners []func(*Surface)
}

// NewManager creates an empty manager. notifier may be nil.
func NewManager(notifier FrameNotifier) *Manager {
	return &Manager{
		surfaces: make(map[ID]*Surface),
		notifier: notifier,
	}
}

// OnDestroy registers fn to run after any surface is destroyed.
func (m *Manager) OnDestroy(fn func(*Surface)) {
	m.destroyListeners = append(m.destroyListeners, fn)
}

// Create allocates the state for a new wl_surface.
func (m *Manager) Create(id ID) (*Surface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.surfaces[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSurfaceExists, id)
	}
	s := newSurface(id)
	m.surfaces[id] = s
	return s, nil
}

// Get returns a live surface.
func (m *Manager) Get(id ID) (*Surface, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.surfaces[id]
	return s, ok
}

// Surfaces returns every live surface ordered by client and object id.
func (m *Manager) Surfaces() []*Surface {
	m.mu.RLock()
	out := make([]*Surface, 0, len(m.surfaces))
	for _, s := range m.surfaces {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].id, out[j].id
		if a.Client != b.Client {
			return a.Client < b.Client
		}
		return a.Object < b.Object
	})
	return out
}

// Destroy tears down a surface. Its children move to its former parent,
// its current buffer is released and its unfired frame callbacks are
// dropped.
func (m *Manager) Destroy(id ID) error {
	s, ok := m.remove(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSurface, id)
	}
	buf, callbacks := m.teardown(s)
	if buf != nil {
		buf.Release()
	}
	if m.notifier != nil {
		for _, cb := range callbacks {
			m.notifier.FrameDropped(id.Client, cb)
		}
	}
	return nil
}

// DestroyClient tears down every surface of a disconnected client without
// releasing buffers, since the client can no longer receive events. It
// returns the number of surfaces destroyed.
func (m *Manager) DestroyClient(client registry.ClientID) int {
	m.mu.Lock()
	var doomed []*Surface
	for id, s := range m.surfaces {
		if id.Client == client {
			doomed = append(doomed, s)
			delete(m.surfaces, id)
		}
	}
	m.mu.Unlock()

	sort.Slice(doomed, func(i, j int) bool { return doomed[i].id.Object < doomed[j].id.Object })
	for _, s := range doomed {
		m.teardown(s)
	}
	return len(doomed)
}

func (m *Manager) remove(id ID) (*Surface, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surfaces[id]
	if ok {
		delete(m.surfaces, id)
	}
	return s, ok
}

// teardown unlinks s from the tree, promotes its children to its parent
// and runs the destruction callbacks. It returns the current buffer and
// every frame callback still queued.
func (m *Manager) teardown(s *Surface) (Buffer, []uint32) {
	parent := s.Parent()

	if parent != nil {
		parent.mu.Lock()
	}
	s.mu.Lock()

	children := append(append([]*Surface(nil), s.below...), s.above...)
	if parent != nil {
		parent.below = replaceChild(parent.below, s, children)
		parent.above = replaceChild(parent.above, s, children)
	}
	s.parent = nil
	s.below, s.above = nil, nil
	s.sub = nil
	s.destroyed = true
	buf := s.current.Buffer
	s.current.Buffer = nil
	var callbacks []uint32
	for _, st := range []*State{&s.current, &s.cached, &s.pending} {
		callbacks = append(callbacks, st.FrameCallbacks...)
		st.FrameCallbacks = nil
	}
	onDestroy := s.onDestroy
	s.onDestroy = nil

	s.mu.Unlock()
	if parent != nil {
		parent.mu.Unlock()
	}

	for _, child := range children {
		child.mu.Lock()
		child.parent = parent
		child.mu.Unlock()
	}

	if onDestroy != nil {
		onDestroy(s)
	}
	for _, fn := range m.destroyListeners {
		fn(s)
	}
	return buf, callbacks
}

// replaceChild swaps target in list for repl, keeping positions.
func replaceChild(list []*Surface, target *Surface, repl []*Surface) []*Surface {
	i := indexOf(list, target)
	if i < 0 {
		return list
	}
	out := make([]*Surface, 0, len(list)-1+len(repl))
	out = append(out, list[:i]...)
	out = append(out, repl...)
	return append(out, list[i+1:]...)
}

func indexOf(list []*Surface, s *Surface) int {
	for i, c := range list {
		if c == s {
			return i
		}
	}
	return -1
}

// Commit runs the pre-commit hooks, then promotes pending state. A
// synchronized sub-surface caches its state until its parent commits.
func (m *Manager) Commit(s *Surface) {
	if s.Destroyed() {
		return
	}

	pre, _ := s.hooks()
	for _, h := range pre {
		h(m, s)
	}

	if m.effectivelySync(s) {
		if dropped := s.cachePending(); dropped != nil {
			dropped.Release()
		}
		return
	}
	m.apply(s)
}

func (m *Manager) apply(s *Surface) {
	for _, buf := range s.promote() {
		buf.Release()
	}

	for _, child := range s.Children() {
		child.applyChildPosition()
		if child.hasCachedState() {
			m.apply(child)
		}
	}

	_, post := s.hooks()
	for _, h := range post {
		h(m, s)
	}
}

// Presented fires the frame callbacks of the content currently shown.
func (m *Manager) Presented(s *Surface, timeMs uint32) {
	callbacks := s.takeFrameCallbacks()
	if m.notifier == nil {
		return
	}
	for _, cb := range callbacks {
		m.notifier.FrameDone(s.id.Client, cb, timeMs)
	}
}
