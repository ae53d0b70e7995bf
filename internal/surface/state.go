package surface

// Buffer is a client buffer attached to a surface. Release hands it back
// to the client once the compositor no longer reads it.
type Buffer interface {
	Size() (width, height int32)
	Release()
}

type field uint32

const (
	fieldBuffer field = 1 << iota
	fieldOffset
	fieldScale
	fieldTransform
	fieldOpaque
	fieldInput
)

// State is one side of the double-buffered surface state.
type State struct {
	Buffer Buffer
	// OffsetX and OffsetY move the buffer relative to the previous commit.
	OffsetX, OffsetY int32
	Scale            int32
	Transform        int32

	// Damage in surface-local and buffer coordinates. Rectangles are kept
	// as sent, never coalesced.
	Damage       []Rect
	BufferDamage []Rect

	// A nil input region accepts input over the whole surface. A nil opaque
	// region marks nothing as opaque, as in wl_surface.set_opaque_region;
	// the two nil regions do not mean the same thing.
	OpaqueRegion *Region
	InputRegion  *Region

	FrameCallbacks []uint32

	fields field
}

// HasBuffer reports whether an attach happened in this state.
func (st *State) HasBuffer() bool {
	return st.fields&fieldBuffer != 0
}

func (st *State) clone() State {
	out := *st
	out.Damage = append([]Rect(nil), st.Damage...)
	out.BufferDamage = append([]Rect(nil), st.BufferDamage...)
	out.FrameCallbacks = append([]uint32(nil), st.FrameCallbacks...)
	out.OpaqueRegion = st.OpaqueRegion.Clone()
	out.InputRegion = st.InputRegion.Clone()
	return out
}

// merge folds src into st the way a commit folds pending state into the
// cache. It returns a buffer that src superseded and that will never be
// shown.
func (st *State) merge(src *State) Buffer {
	var dropped Buffer
	if src.fields&fieldBuffer != 0 {
		if st.fields&fieldBuffer != 0 && st.Buffer != nil && st.Buffer != src.Buffer {
			dropped = st.Buffer
		}
		st.Buffer = src.Buffer
	}
	if src.fields&fieldOffset != 0 {
		st.OffsetX += src.OffsetX
		st.OffsetY += src.OffsetY
	}
	if src.fields&fieldScale != 0 {
		st.Scale = src.Scale
	}
	if src.fields&fieldTransform != 0 {
		st.Transform = src.Transform
	}
	if src.fields&fieldOpaque != 0 {
		st.OpaqueRegion = src.OpaqueRegion
	}
	if src.fields&fieldInput != 0 {
		st.InputRegion = src.InputRegion
	}
	st.Damage = append(st.Damage, src.Damage...)
	st.BufferDamage = append(st.BufferDamage, src.BufferDamage...)
	st.FrameCallbacks = append(st.FrameCallbacks, src.FrameCallbacks...)
	st.fields |= src.fields
	return dropped
}
