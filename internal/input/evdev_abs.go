package input

import (
	"sort"
	"unsafe"

	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/sys/unix"
)

// absRange is the value range of an absolute axis.
type absRange struct {
	min, max int32
}

// normalize maps v into [0, 1].
func (a absRange) normalize(v int32) float64 {
	if a.max <= a.min {
		return 0
	}
	n := float64(v-a.min) / float64(a.max-a.min)
	switch {
	case n < 0:
		return 0
	case n > 1:
		return 1
	}
	return n
}

// touchSlot is one multitouch contact. tracking is -1 while the slot is
// empty.
type touchSlot struct {
	tracking int32
	x, y     int32
	down     bool
	changed  bool
}

// deviceState accumulates one device's events until SYN_REPORT.
type deviceState struct {
	dx, dy int32

	absX, absY absRange
	ax, ay     int32
	absMoved   bool

	mtX, mtY absRange
	slot     int32
	slots    map[int32]*touchSlot
}

func newDeviceState(dev *evdev.InputDevice) *deviceState {
	st := &deviceState{slots: make(map[int32]*touchSlot)}
	abs := dev.CapabilitiesFlat[evdev.EV_ABS]
	fd := dev.File.Fd()
	for _, axis := range []struct {
		code int
		dst  *absRange
	}{
		{evdev.ABS_X, &st.absX},
		{evdev.ABS_Y, &st.absY},
		{evdev.ABS_MT_POSITION_X, &st.mtX},
		{evdev.ABS_MT_POSITION_Y, &st.mtY},
	} {
		if !containsCode(abs, axis.code) {
			continue
		}
		if r, err := readAbsRange(fd, axis.code); err == nil {
			*axis.dst = r
		}
	}
	return st
}

// iocRead is the _IOC_READ direction bit.
const iocRead = 2

// inputAbsinfo mirrors struct input_absinfo.
type inputAbsinfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// readAbsRange issues EVIOCGABS for one axis.
func readAbsRange(fd uintptr, code int) (absRange, error) {
	var info inputAbsinfo
	req := uintptr(iocRead)<<30 | unsafe.Sizeof(info)<<16 | uintptr('E')<<8 | uintptr(0x40+code)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(&info))); errno != 0 {
		return absRange{}, errno
	}
	return absRange{min: info.Minimum, max: info.Maximum}, nil
}

func (st *deviceState) multitouch() bool {
	return st.mtX.max > st.mtX.min && st.mtY.max > st.mtY.min
}

func (st *deviceState) current() *touchSlot {
	s, ok := st.slots[st.slot]
	if !ok {
		s = &touchSlot{tracking: -1}
		st.slots[st.slot] = s
	}
	return s
}

func (st *deviceState) handleAbs(code uint16, value int32) {
	switch code {
	case evdev.ABS_X:
		st.ax, st.absMoved = value, true
	case evdev.ABS_Y:
		st.ay, st.absMoved = value, true
	case evdev.ABS_MT_SLOT:
		st.slot = value
	case evdev.ABS_MT_TRACKING_ID:
		s := st.current()
		s.tracking, s.changed = value, true
	case evdev.ABS_MT_POSITION_X:
		s := st.current()
		s.x, s.changed = value, true
	case evdev.ABS_MT_POSITION_Y:
		s := st.current()
		s.y, s.changed = value, true
	}
}

// changedSlots returns the slots touched since the last flush in slot
// order.
func (st *deviceState) changedSlots() []int32 {
	var out []int32
	for n, s := range st.slots {
		if s.changed {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
