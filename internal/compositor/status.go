package compositor

// SurfaceStatus describes one surface for status reports.
type SurfaceStatus struct {
	ID     string
	Role   string
	Mapped bool
	Width  int32
	Height int32
	Parent string
}

// Status is a point-in-time view of the compositor state.
type Status struct {
	Surfaces      []SurfaceStatus
	Views         []View
	Globals       []Global
	KeyboardFocus string
	PointerFocus  string
	PointerX      float64
	PointerY      float64
	Pointers      int
	Keyboards     int
	Touches       int
}

// Status collects the current state. It must run on the reactor.
func (c *Compositor) Status() Status {
	st := Status{
		Views:   c.scene.Views(),
		Globals: c.Globals(),
	}
	for _, s := range c.surfaces.Surfaces() {
		w, h := s.Size()
		ss := SurfaceStatus{
			ID:     s.ID().String(),
			Role:   s.Role().String(),
			Mapped: s.Mapped(),
			Width:  w,
			Height: h,
		}
		if p := s.Parent(); p != nil {
			ss.Parent = p.ID().String()
		}
		st.Surfaces = append(st.Surfaces, ss)
	}

	focus := c.router.Focus()
	if id, ok := focus.KeyboardFocus(); ok {
		st.KeyboardFocus = id.String()
	}
	if id, ok := focus.PointerFocus(); ok {
		st.PointerFocus = id.String()
	}
	st.PointerX, st.PointerY = c.router.Position()
	st.Pointers, st.Keyboards, st.Touches = c.seat.Counts()
	return st
}
