package compositor

import (
	"encoding/binary"

	"github.com/bnema/waycore/internal/dispatch"
	"github.com/bnema/waycore/internal/input"
	"github.com/bnema/waycore/internal/logger"
	"github.com/bnema/waycore/internal/registry"
	"github.com/bnema/waycore/internal/surface"
	"github.com/bnema/waycore/internal/wire"
)

// wl_pointer events.
const (
	pointerEventEnter        uint16 = 0
	pointerEventLeave        uint16 = 1
	pointerEventMotion       uint16 = 2
	pointerEventButton       uint16 = 3
	pointerEventAxis         uint16 = 4
	pointerEventFrame        uint16 = 5
	pointerEventAxisSource   uint16 = 6
	pointerEventAxisDiscrete uint16 = 8
	pointerEventAxisValue120 uint16 = 9
)

// wl_keyboard events.
const (
	keyboardEventKeymap     uint16 = 0
	keyboardEventEnter      uint16 = 1
	keyboardEventLeave      uint16 = 2
	keyboardEventKey        uint16 = 3
	keyboardEventModifiers  uint16 = 4
	keyboardEventRepeatInfo uint16 = 5
)

// wl_touch events.
const (
	touchEventDown   uint16 = 0
	touchEventUp     uint16 = 1
	touchEventMotion uint16 = 2
	touchEventFrame  uint16 = 3
	touchEventCancel uint16 = 4
)

const axisSourceWheel uint32 = 0

// pressedState is the wl_pointer.button_state and wl_keyboard.key_state
// value for a press.
func pressedState(pressed bool) uint32 {
	if pressed {
		return 1
	}
	return 0
}

// keyArray encodes held keys as a wl_array of uint32.
func keyArray(keys []uint32) []byte {
	out := make([]byte, 0, len(keys)*4)
	for _, k := range keys {
		out = binary.LittleEndian.AppendUint32(out, k)
	}
	return out
}

// clientSink fans router events out to every seat resource the target's
// client holds.
type clientSink struct {
	d    *dispatch.Dispatcher
	seat *input.Seat
}

var _ input.EventSink = (*clientSink)(nil)

func newClientSink(d *dispatch.Dispatcher, seat *input.Seat) *clientSink {
	return &clientSink{d: d, seat: seat}
}

func (s *clientSink) post(client registry.ClientID, objectID uint32, opcode uint16, args ...interface{}) {
	if err := s.d.PostEvent(client, objectID, opcode, args...); err != nil {
		logger.Debugf("[INPUT] event %d to object %d of client %d: %v", opcode, objectID, client, err)
	}
}

func (s *clientSink) pointers(target surface.ID) []*input.Pointer {
	return s.seat.Pointers(target.Client)
}

func (s *clientSink) PointerEnter(target surface.ID, serial uint32, x, y float64) {
	for _, p := range s.pointers(target) {
		s.post(target.Client, p.ID.Object, pointerEventEnter, serial, target.Object, wire.FixedFromFloat(x), wire.FixedFromFloat(y))
	}
	s.seat.NoteEnter(target.Client, serial)
}

func (s *clientSink) PointerLeave(target surface.ID, serial uint32) {
	for _, p := range s.pointers(target) {
		s.post(target.Client, p.ID.Object, pointerEventLeave, serial, target.Object)
	}
}

func (s *clientSink) PointerMotion(target surface.ID, timeMs uint32, x, y float64) {
	for _, p := range s.pointers(target) {
		s.post(target.Client, p.ID.Object, pointerEventMotion, timeMs, wire.FixedFromFloat(x), wire.FixedFromFloat(y))
	}
}

func (s *clientSink) PointerButton(target surface.ID, serial, timeMs, button uint32, pressed bool) {
	for _, p := range s.pointers(target) {
		s.post(target.Client, p.ID.Object, pointerEventButton, serial, timeMs, button, pressedState(pressed))
	}
}

// PointerAxis sends wheel steps as axis_value120 to version 8 pointers and
// as axis_source plus axis_discrete to older ones that have frames.
func (s *clientSink) PointerAxis(target surface.ID, timeMs uint32, axis input.Axis, value float64, discrete int32) {
	for _, p := range s.pointers(target) {
		if discrete != 0 {
			switch {
			case p.Version >= 8:
				s.post(target.Client, p.ID.Object, pointerEventAxisValue120, uint32(axis), discrete*120)
			case p.Version >= 5:
				s.post(target.Client, p.ID.Object, pointerEventAxisSource, axisSourceWheel)
				s.post(target.Client, p.ID.Object, pointerEventAxisDiscrete, uint32(axis), discrete)
			}
		}
		s.post(target.Client, p.ID.Object, pointerEventAxis, timeMs, uint32(axis), wire.FixedFromFloat(value))
	}
}

func (s *clientSink) PointerFrame(target surface.ID) {
	for _, p := range s.pointers(target) {
		if p.Version >= 5 {
			s.post(target.Client, p.ID.Object, pointerEventFrame)
		}
	}
}

func (s *clientSink) KeyboardEnter(target surface.ID, serial uint32, keys []uint32) {
	arr := keyArray(keys)
	for _, k := range s.seat.Keyboards(target.Client) {
		s.post(target.Client, k.ID.Object, keyboardEventEnter, serial, target.Object, arr)
	}
}

func (s *clientSink) KeyboardLeave(target surface.ID, serial uint32) {
	for _, k := range s.seat.Keyboards(target.Client) {
		s.post(target.Client, k.ID.Object, keyboardEventLeave, serial, target.Object)
	}
}

// KeyboardKey sends a key event. Repeats are sent as presses since
// wl_keyboard before version 10 has no repeated state.
func (s *clientSink) KeyboardKey(target surface.ID, ev input.KeyEvent) {
	for _, k := range s.seat.Keyboards(target.Client) {
		s.post(target.Client, k.ID.Object, keyboardEventKey, ev.Serial, ev.Time, ev.Key, pressedState(ev.Pressed))
	}
}

func (s *clientSink) KeyboardModifiers(target surface.ID, serial uint32, mods input.Modifiers) {
	for _, k := range s.seat.Keyboards(target.Client) {
		s.post(target.Client, k.ID.Object, keyboardEventModifiers, serial, mods.Depressed, mods.Latched, mods.Locked, mods.Group)
	}
}

func (s *clientSink) TouchDown(target surface.ID, serial, timeMs uint32, id int32, x, y float64) {
	for _, t := range s.seat.Touches(target.Client) {
		s.post(target.Client, t.ID.Object, touchEventDown, serial, timeMs, target.Object, id, wire.FixedFromFloat(x), wire.FixedFromFloat(y))
	}
}

func (s *clientSink) TouchUp(target surface.ID, serial, timeMs uint32, id int32) {
	for _, t := range s.seat.Touches(target.Client) {
		s.post(target.Client, t.ID.Object, touchEventUp, serial, timeMs, id)
	}
}

func (s *clientSink) TouchMotion(target surface.ID, timeMs uint32, id int32, x, y float64) {
	for _, t := range s.seat.Touches(target.Client) {
		s.post(target.Client, t.ID.Object, touchEventMotion, timeMs, id, wire.FixedFromFloat(x), wire.FixedFromFloat(y))
	}
}

func (s *clientSink) TouchFrame(target surface.ID) {
	for _, t := range s.seat.Touches(target.Client) {
		s.post(target.Client, t.ID.Object, touchEventFrame)
	}
}

func (s *clientSink) TouchCancel(target surface.ID) {
	for _, t := range s.seat.Touches(target.Client) {
		s.post(target.Client, t.ID.Object, touchEventCancel)
	}
}
