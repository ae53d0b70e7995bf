package surface

// Rect is an axis aligned rectangle in surface or buffer coordinates.
type Rect struct {
	X, Y          int32
	Width, Height int32
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether the point lies inside r.
func (r Rect) Contains(x, y int32) bool {
	return !r.Empty() && x >= r.X && y >= r.Y && x < r.X+r.Width && y < r.Y+r.Height
}

// Intersect returns the overlap of r and o.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	x1, y1 := max(r.X, o.X), max(r.Y, o.Y)
	x2, y2 := min(r.X+r.Width, o.X+o.Width), min(r.Y+r.Height, o.Y+o.Height)
	out := Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
	if out.Empty() {
		return Rect{}, false
	}
	return out, true
}

// subtract returns the parts of r not covered by o, at most four
// rectangles.
func (r Rect) subtract(o Rect) []Rect {
	in, ok := r.Intersect(o)
	if !ok {
		return []Rect{r}
	}

	var out []Rect
	if in.Y > r.Y {
		out = append(out, Rect{X: r.X, Y: r.Y, Width: r.Width, Height: in.Y - r.Y})
	}
	if bottom := r.Y + r.Height; in.Y+in.Height < bottom {
		out = append(out, Rect{X: r.X, Y: in.Y + in.Height, Width: r.Width, Height: bottom - (in.Y + in.Height)})
	}
	if in.X > r.X {
		out = append(out, Rect{X: r.X, Y: in.Y, Width: in.X - r.X, Height: in.Height})
	}
	if right := r.X + r.Width; in.X+in.Width < right {
		out = append(out, Rect{X: in.X + in.Width, Y: in.Y, Width: right - (in.X + in.Width), Height: in.Height})
	}
	return out
}

// Region is a set of pixels stored as disjoint rectangles, built from
// wl_region add and subtract requests.
type Region struct {
	rects []Rect
}

// NewRegion returns a region covering the given rectangles.
func NewRegion(rects ...Rect) *Region {
	r := &Region{}
	for _, rect := range rects {
		r.Add(rect)
	}
	return r
}

// Add unions rect into the region.
func (r *Region) Add(rect Rect) {
	if rect.Empty() {
		return
	}
	pieces := []Rect{rect}
	for _, existing := range r.rects {
		var next []Rect
		for _, p := range pieces {
			next = append(next, p.subtract(existing)...)
		}
		pieces = next
		if len(pieces) == 0 {
			return
		}
	}
	r.rects = append(r.rects, pieces...)
}

// Subtract removes rect from the region.
func (r *Region) Subtract(rect Rect) {
	if rect.Empty() {
		return
	}
	var next []Rect
	for _, existing := range r.rects {
		next = append(next, existing.subtract(rect)...)
	}
	r.rects = next
}

// Contains reports whether the point is inside the region.
func (r *Region) Contains(x, y int32) bool {
	for _, rect := range r.rects {
		if rect.Contains(x, y) {
			return true
		}
	}
	return false
}

// Empty reports whether the region covers nothing.
func (r *Region) Empty() bool {
	return len(r.rects) == 0
}

// Area returns the number of covered pixels.
func (r *Region) Area() int64 {
	var area int64
	for _, rect := range r.rects {
		area += int64(rect.Width) * int64(rect.Height)
	}
	return area
}

// Rects returns a copy of the disjoint rectangles.
func (r *Region) Rects() []Rect {
	return append([]Rect(nil), r.rects...)
}

// Clone returns an independent copy. Cloning nil returns nil.
func (r *Region) Clone() *Region {
	if r == nil {
		return nil
	}
	return &Region{rects: r.Rects()}
}
