package surface

import (
	"errors"
	"fmt"
)

// ErrAlreadySubsurface is returned when a surface already has a
// wl_subsurface object.
var ErrAlreadySubsurface = errors.New("surface is already a sub-surface")

// AddSubsurface makes child a synchronized sub-surface of parent, stacked
// directly above it. A child that is an ancestor of parent is rejected.
func (m *Manager) AddSubsurface(child, parent *Surface) error {
	if child == parent {
		return fmt.Errorf("%w: surface %s cannot be its own parent", ErrCycle, child.id)
	}
	for anc := parent; anc != nil; anc = anc.Parent() {
		if anc == child {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrCycle, child.id, parent.id)
		}
	}

	child.mu.RLock()
	taken := child.sub != nil
	child.mu.RUnlock()
	if taken {
		return fmt.Errorf("%w: %s", ErrAlreadySubsurface, child.id)
	}
	if err := child.SetRole(RoleSubsurface); err != nil {
		return err
	}

	parent.mu.Lock()
	child.mu.Lock()
	child.parent = parent
	child.sub = &subsurfaceState{sync: true}
	parent.above = append(parent.above, child)
	child.mu.Unlock()
	parent.mu.Unlock()
	return nil
}

// DetachSubsurface unlinks a sub-surface from its parent, unmapping it.
// The surface keeps its role.
func (m *Manager) DetachSubsurface(child *Surface) {
	parent := child.Parent()
	if parent != nil {
		parent.mu.Lock()
		parent.below = removeChild(parent.below, child)
		parent.above = removeChild(parent.above, child)
	}
	child.mu.Lock()
	child.parent = nil
	child.sub = nil
	child.cached = State{}
	child.hasCache = false
	child.mu.Unlock()
	if parent != nil {
		parent.mu.Unlock()
	}
}

func removeChild(list []*Surface, target *Surface) []*Surface {
	return replaceChild(list, target, nil)
}

// SetPosition sets the pending position of a sub-surface. It becomes
// current when the parent commits.
func (m *Manager) SetPosition(child *Surface, x, y int32) error {
	child.mu.Lock()
	defer child.mu.Unlock()
	if child.sub == nil {
		return fmt.Errorf("%w: %s", ErrNotSubsurface, child.id)
	}
	child.sub.pendingX, child.sub.pendingY = x, y
	child.sub.positionPending = true
	return nil
}

// PlaceAbove restacks child directly above sibling, which may be the parent.
func (m *Manager) PlaceAbove(child, sibling *Surface) error {
	return m.restack(child, sibling, true)
}

// PlaceBelow restacks child directly below sibling, which may be the parent.
func (m *Manager) PlaceBelow(child, sibling *Surface) error {
	return m.restack(child, sibling, false)
}

func (m *Manager) restack(child, sibling *Surface, above bool) error {
	parent := child.Parent()
	if parent == nil {
		return fmt.Errorf("%w: %s", ErrNotSubsurface, child.id)
	}
	if sibling == child {
		return fmt.Errorf("%w: %s", ErrBadSibling, sibling.id)
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()

	if sibling != parent && indexOf(parent.below, sibling) < 0 && indexOf(parent.above, sibling) < 0 {
		return fmt.Errorf("%w: %s", ErrBadSibling, sibling.id)
	}

	parent.below = removeChild(parent.below, child)
	parent.above = removeChild(parent.above, child)

	switch {
	case sibling == parent && above:
		parent.above = insertAt(parent.above, 0, child)
	case sibling == parent:
		parent.below = append(parent.below, child)
	default:
		list := &parent.above
		i := indexOf(parent.above, sibling)
		if i < 0 {
			list = &parent.below
			i = indexOf(parent.below, sibling)
		}
		if above {
			i++
		}
		*list = insertAt(*list, i, child)
	}
	return nil
}

func insertAt(list []*Surface, i int, s *Surface) []*Surface {
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

// SetSync switches a sub-surface between synchronized and desynchronized
// mode. Leaving synchronized mode applies any cached state.
func (m *Manager) SetSync(child *Surface, sync bool) error {
	child.mu.Lock()
	if child.sub == nil {
		child.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSubsurface, child.id)
	}
	child.sub.sync = sync
	child.mu.Unlock()

	if !sync && !m.effectivelySync(child) && child.hasCachedState() {
		m.apply(child)
	}
	return nil
}

// IsSync reports whether commits on s are cached until an ancestor
// commits: s or one of its sub-surface ancestors is synchronized.
func (m *Manager) IsSync(s *Surface) bool {
	return m.effectivelySync(s)
}

func (m *Manager) effectivelySync(s *Surface) bool {
	for cur := s; cur != nil; cur = cur.Parent() {
		cur.mu.RLock()
		sub, orphaned := cur.sub, cur.parent == nil
		sync := sub != nil && sub.sync
		cur.mu.RUnlock()

		// Sub-surfaces whose parent is gone commit directly.
		if sub == nil || orphaned {
			return false
		}
		if sync {
			return true
		}
	}
	return false
}
