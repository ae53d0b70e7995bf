package compositor

import (
	"math"
	"sync"

	"github.com/bnema/waycore/internal/input"
	"github.com/bnema/waycore/internal/registry"
	"github.com/bnema/waycore/internal/surface"
)

// View is a root surface placed on the output.
type View struct {
	Surface surface.ID
	X, Y    int32
}

// Scene stacks root surfaces on the single output and answers the router's
// spatial queries. Sub-surfaces are found through their roots.
type Scene struct {
	mu       sync.RWMutex
	surfaces *surface.Manager
	views    []View // bottom to top
}

var _ input.SurfaceLocator = (*Scene)(nil)

// NewScene returns an empty scene over m.
func NewScene(m *surface.Manager) *Scene {
	return &Scene{surfaces: m}
}

// Place moves a surface to the global position and raises it to the top.
func (sc *Scene) Place(id surface.ID, x, y int32) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.views = removeView(sc.views, id)
	sc.views = append(sc.views, View{Surface: id, X: x, Y: y})
}

// Raise moves a placed surface to the top and reports whether it was
// placed.
func (sc *Scene) Raise(id surface.ID) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for i, v := range sc.views {
		if v.Surface == id {
			sc.views = append(append(sc.views[:i:i], sc.views[i+1:]...), v)
			return true
		}
	}
	return false
}

// Remove takes a surface off the scene and reports whether it was placed.
func (sc *Scene) Remove(id surface.ID) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	n := len(sc.views)
	sc.views = removeView(sc.views, id)
	return len(sc.views) != n
}

// RemoveClient takes every surface of a client off the scene.
func (sc *Scene) RemoveClient(client registry.ClientID) int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	kept := sc.views[:0]
	for _, v := range sc.views {
		if v.Surface.Client != client {
			kept = append(kept, v)
		}
	}
	n := len(sc.views) - len(kept)
	sc.views = kept
	return n
}

// Views returns the placed surfaces, bottom to top.
func (sc *Scene) Views() []View {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return append([]View(nil), sc.views...)
}

func removeView(views []View, id surface.ID) []View {
	for i, v := range views {
		if v.Surface == id {
			return append(views[:i:i], views[i+1:]...)
		}
	}
	return views
}

// SurfaceAt returns the topmost mapped surface accepting input at the
// global position, searching each root's sub-surfaces above and below it.
func (sc *Scene) SurfaceAt(x, y float64) (input.Hit, bool) {
	views := sc.Views()
	for i := len(views) - 1; i >= 0; i-- {
		v := views[i]
		root, ok := sc.surfaces.Get(v.Surface)
		if !ok || !root.Mapped() {
			continue
		}
		if hit, ok := treeAt(root, x-float64(v.X), y-float64(v.Y)); ok {
			return hit, true
		}
	}
	return input.Hit{}, false
}

// treeAt hit-tests s and its children in stacking order, top first. x and
// y are relative to s.
func treeAt(s *surface.Surface, x, y float64) (input.Hit, bool) {
	below, above := s.Stack()

	for i := len(above) - 1; i >= 0; i-- {
		if hit, ok := childAt(above[i], x, y); ok {
			return hit, true
		}
	}
	if s.Mapped() && s.AcceptsInput(int32(math.Floor(x)), int32(math.Floor(y))) {
		return input.Hit{Surface: s.ID(), X: x, Y: y}, true
	}
	for i := len(below) - 1; i >= 0; i-- {
		if hit, ok := childAt(below[i], x, y); ok {
			return hit, true
		}
	}
	return input.Hit{}, false
}

func childAt(child *surface.Surface, x, y float64) (input.Hit, bool) {
	if !child.Mapped() {
		return input.Hit{}, false
	}
	cx, cy := child.Position()
	return treeAt(child, x-float64(cx), y-float64(cy))
}

// SurfaceOrigin returns the global position of a surface, walking up the
// sub-surface tree to its placed root.
func (sc *Scene) SurfaceOrigin(id surface.ID) (float64, float64, bool) {
	s, ok := sc.surfaces.Get(id)
	if !ok {
		return 0, 0, false
	}

	var x, y int32
	for cur := s; cur != nil; cur = cur.Parent() {
		if v, ok := sc.view(cur.ID()); ok {
			return float64(x + v.X), float64(y + v.Y), true
		}
		px, py := cur.Position()
		x, y = x+px, y+py
	}
	return 0, 0, false
}

func (sc *Scene) view(id surface.ID) (View, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	for _, v := range sc.views {
		if v.Surface == id {
			return v, true
		}
	}
	return View{}, false
}
