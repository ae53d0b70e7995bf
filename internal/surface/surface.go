// Package surface implements the double-buffered wl_surface state machine.
//
// Requests mutate pending state only; Commit promotes pending to current.
// The reactor goroutine is the only writer. Renderers read current state
// from other goroutines through Snapshot, guarded by one lock per surface.
// Operations touching two surfaces lock the parent before the child.
package surface

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/waycore/internal/registry"
)

var (
	ErrRoleConflict     = errors.New("surface already has a different role")
	ErrSurfaceExists    = errors.New("surface already exists")
	ErrUnknownSurface   = errors.New("unknown surface")
	ErrCycle            = errors.New("sub-surface would create a cycle")
	ErrNotSubsurface    = errors.New("surface is not a sub-surface")
	ErrBadSibling       = errors.New("surface is neither a sibling nor the parent")
	ErrInvalidScale     = errors.New("buffer scale must be positive")
	ErrInvalidTransform = errors.New("invalid buffer transform")
	ErrDestroyed        = errors.New("surface destroyed")
)

// ID identifies a surface by owning client and object id.
type ID struct {
	Client registry.ClientID
	Object uint32
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Client, id.Object)
}

// Hook runs around a commit with access to the compositor state.
type Hook func(m *Manager, s *Surface)

type subsurfaceState struct {
	x, y            int32
	pendingX        int32
	pendingY        int32
	positionPending bool
	sync            bool
}

// Surface is the state of one wl_surface.
type Surface struct {
	mu sync.RWMutex
	id ID

	role    Role
	pending State
	current State

	cached   State
	hasCache bool

	parent *Surface
	below  []*Surface
	above  []*Surface
	sub    *subsurfaceState

	preCommit  []Hook
	postCommit []Hook
	onDestroy  func(*Surface)
	destroyed  bool
}

func newSurface(id ID) *Surface {
	return &Surface{
		id:      id,
		current: State{Scale: 1},
	}
}

// ID returns the surface identity.
func (s *Surface) ID() ID {
	return s.id
}

// Client returns the owning client.
func (s *Surface) Client() registry.ClientID {
	return s.id.Client
}

// Destroyed reports whether the surface was destroyed.
func (s *Surface) Destroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}

// Attach sets the pending buffer and moves it by dx, dy. A nil buffer
// unmaps the surface on the next commit.
func (s *Surface) Attach(buf Buffer, dx, dy int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Buffer = buf
	s.pending.fields |= fieldBuffer
	if dx != 0 || dy != 0 {
		s.pending.OffsetX, s.pending.OffsetY = dx, dy
		s.pending.fields |= fieldOffset
	}
}

// Offset sets the pending buffer offset (wl_surface.offset).
func (s *Surface) Offset(dx, dy int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.OffsetX, s.pending.OffsetY = dx, dy
	s.pending.fields |= fieldOffset
}

// Damage appends a surface-local damage rectangle.
func (s *Surface) Damage(r Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Damage = append(s.pending.Damage, r)
}

// DamageBuffer appends a buffer-local damage rectangle.
func (s *Surface) DamageBuffer(r Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.BufferDamage = append(s.pending.BufferDamage, r)
}

// SetOpaqueRegion replaces the pending opaque region. The region is copied.
func (s *Surface) SetOpaqueRegion(r *Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.OpaqueRegion = r.Clone()
	s.pending.fields |= fieldOpaque
}

// SetInputRegion replaces the pending input region. The region is copied.
func (s *Surface) SetInputRegion(r *Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.InputRegion = r.Clone()
	s.pending.fields |= fieldInput
}

// SetBufferScale sets the pending buffer scale.
func (s *Surface) SetBufferScale(scale int32) error {
	if scale < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidScale, scale)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Scale = scale
	s.pending.fields |= fieldScale
	return nil
}

// SetBufferTransform sets the pending wl_output.transform value.
func (s *Surface) SetBufferTransform(transform int32) error {
	if transform < 0 || transform > 7 {
		return fmt.Errorf("%w: %d", ErrInvalidTransform, transform)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Transform = transform
	s.pending.fields |= fieldTransform
	return nil
}

// Frame queues a one-shot frame callback for the next presentation.
func (s *Surface) Frame(callbackID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.FrameCallbacks = append(s.pending.FrameCallbacks, callbackID)
}

// AddPreCommitHook registers a hook that runs before each commit.
func (s *Surface) AddPreCommitHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preCommit = append(s.preCommit, h)
}

// AddPostCommitHook registers a hook that runs after state is promoted.
func (s *Surface) AddPostCommitHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postCommit = append(s.postCommit, h)
}

// SetDestroyCallback installs a one-shot callback run on destruction.
func (s *Surface) SetDestroyCallback(fn func(*Surface)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDestroy = fn
}

// Snapshot returns a deep copy of the current state.
func (s *Surface) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Pending returns a deep copy of the pending state.
func (s *Surface) Pending() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending.clone()
}

// Size returns the surface size derived from the current buffer and scale.
func (s *Surface) Size() (int32, int32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current.Buffer == nil {
		return 0, 0
	}
	w, h := s.current.Buffer.Size()
	scale := max(s.current.Scale, 1)
	if s.current.Transform%2 == 1 {
		w, h = h, w
	}
	return w / scale, h / scale
}

// AcceptsInput reports whether the surface-local point is inside the
// surface and its input region.
func (s *Surface) AcceptsInput(x, y int32) bool {
	w, h := s.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.InputRegion == nil || s.current.InputRegion.Contains(x, y)
}

// Mapped reports whether a renderer may show the surface: it needs a role,
// a current buffer, and for sub-surfaces a mapped parent.
func (s *Surface) Mapped() bool {
	s.mu.RLock()
	role, hasBuffer, parent, destroyed := s.role, s.current.Buffer != nil, s.parent, s.destroyed
	s.mu.RUnlock()

	if destroyed || role == RoleNone || !hasBuffer {
		return false
	}
	if role == RoleSubsurface {
		return parent != nil && parent.Mapped()
	}
	return true
}

// Parent returns the sub-surface parent, if any.
func (s *Surface) Parent() *Surface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parent
}

// Stack returns the children stacked below and above the surface, each in
// bottom to top order.
func (s *Surface) Stack() (below, above []*Surface) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Surface(nil), s.below...), append([]*Surface(nil), s.above...)
}

// Children returns every child sub-surface, bottom to top.
func (s *Surface) Children() []*Surface {
	below, above := s.Stack()
	return append(below, above...)
}

// Position returns the sub-surface position relative to its parent.
func (s *Surface) Position() (int32, int32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sub == nil {
		return 0, 0
	}
	return s.sub.x, s.sub.y
}

func (s *Surface) hooks() (pre, post []Hook) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Hook(nil), s.preCommit...), append([]Hook(nil), s.postCommit...)
}

// cachePending folds pending state into the sub-surface cache. It returns a
// buffer that will never be shown.
func (s *Surface) cachePending() Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := s.cached.merge(&s.pending)
	s.hasCache = true
	s.pending = State{}
	return dropped
}

// promote applies cached and pending state to current and returns buffers
// that are no longer referenced.
func (s *Surface) promote() []Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released []Buffer
	next := s.cached
	if dropped := next.merge(&s.pending); dropped != nil {
		released = append(released, dropped)
	}
	s.cached = State{}
	s.hasCache = false
	s.pending = State{}

	cur := &s.current
	if next.fields&fieldBuffer != 0 {
		if cur.Buffer != nil && cur.Buffer != next.Buffer {
			released = append(released, cur.Buffer)
		}
		cur.Buffer = next.Buffer
	}
	cur.OffsetX, cur.OffsetY = 0, 0
	if next.fields&fieldOffset != 0 {
		cur.OffsetX, cur.OffsetY = next.OffsetX, next.OffsetY
	}
	if next.fields&fieldScale != 0 {
		cur.Scale = next.Scale
	}
	if next.fields&fieldTransform != 0 {
		cur.Transform = next.Transform
	}
	if next.fields&fieldOpaque != 0 {
		cur.OpaqueRegion = next.OpaqueRegion
	}
	if next.fields&fieldInput != 0 {
		cur.InputRegion = next.InputRegion
	}
	cur.Damage = next.Damage
	cur.BufferDamage = next.BufferDamage
	cur.FrameCallbacks = append(cur.FrameCallbacks, next.FrameCallbacks...)
	return released
}

// applyChildPosition makes a pending sub-surface position current.
func (s *Surface) applyChildPosition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil && s.sub.positionPending {
		s.sub.x, s.sub.y = s.sub.pendingX, s.sub.pendingY
		s.sub.positionPending = false
	}
}

func (s *Surface) takeFrameCallbacks() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cbs := s.current.FrameCallbacks
	s.current.FrameCallbacks = nil
	return cbs
}

func (s *Surface) hasCachedState() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasCache
}
