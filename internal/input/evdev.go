package input

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bnema/waycore/internal/logger"
	evdev "github.com/gvalkov/golang-evdev"
	"github.com/thejerf/suture/v4"
)

// scrollStep is the axis distance of one wheel detent, as libinput reports it.
const scrollStep = 15.0

// EvdevSource reads raw events from evdev devices and feeds them to the
// router on the reactor goroutine.
type EvdevSource struct {
	paths  []string
	router *Router
	post   func(func())

	mu      sync.Mutex
	devices []*evdev.InputDevice
}

// NewEvdevSource creates a source for the given device paths. With no
// paths, every pointer, keyboard and touchscreen under /dev/input is used.
func NewEvdevSource(paths []string, router *Router, post func(func())) *EvdevSource {
	return &EvdevSource{
		paths:  paths,
		router: router,
		post:   post,
	}
}

func (e *EvdevSource) String() string {
	return "evdev-input"
}

// Serve reads every device until ctx is cancelled.
func (e *EvdevSource) Serve(ctx context.Context) error {
	devices, err := e.open()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		logger.Warn("No input devices found, running without evdev input")
		return suture.ErrDoNotRestart
	}

	e.mu.Lock()
	e.devices = devices
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, dev := range devices {
		wg.Add(1)
		go func(dev *evdev.InputDevice) {
			defer wg.Done()
			e.readLoop(ctx, dev)
		}(dev)
	}

	<-ctx.Done()
	e.closeDevices()
	wg.Wait()
	logger.Info("Evdev input stopped")
	return ctx.Err()
}

// Devices returns the names of the open devices.
func (e *EvdevSource) Devices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.devices))
	for _, dev := range e.devices {
		names = append(names, fmt.Sprintf("%s (%s)", dev.Name, dev.Fn))
	}
	return names
}

func (e *EvdevSource) open() ([]*evdev.InputDevice, error) {
	if len(e.paths) > 0 {
		var devices []*evdev.InputDevice
		for _, path := range e.paths {
			dev, err := evdev.Open(path)
			if err != nil {
				for _, d := range devices {
					d.File.Close()
				}
				return nil, fmt.Errorf("failed to open input device %s: %w", path, err)
			}
			logger.Infof("Using configured input device: %s (%s)", dev.Name, path)
			devices = append(devices, dev)
		}
		return devices, nil
	}

	all, err := evdev.ListInputDevices("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}
	var devices []*evdev.InputDevice
	for _, dev := range all {
		if isPointerDevice(dev) || isKeyboardDevice(dev) || isTouchDevice(dev) {
			logger.Infof("Found input device: %s at %s", dev.Name, dev.Fn)
			devices = append(devices, dev)
			continue
		}
		dev.File.Close()
	}
	return devices, nil
}

func (e *EvdevSource) closeDevices() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dev := range e.devices {
		dev.File.Close()
	}
	e.devices = nil
}

func (e *EvdevSource) emit(fn func(r *Router)) {
	e.post(func() { fn(e.router) })
}

func (e *EvdevSource) readLoop(ctx context.Context, dev *evdev.InputDevice) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Input device %s panic: %v", dev.Fn, r)
		}
	}()

	st := newDeviceState(dev)
	for {
		events, err := dev.Read()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warnf("Error reading input device %s: %v", dev.Fn, err)
			}
			return
		}
		for _, ev := range events {
			e.handleEvent(st, ev)
		}
	}
}

func (e *EvdevSource) handleEvent(st *deviceState, ev evdev.InputEvent) {
	ms := eventTime(ev)
	code, value := ev.Code, ev.Value

	switch ev.Type {
	case evdev.EV_REL:
		switch code {
		case evdev.REL_X:
			st.dx += value
		case evdev.REL_Y:
			st.dy += value
		case evdev.REL_WHEEL:
			e.emit(func(r *Router) {
				r.HandleRawPointerScroll(ms, AxisVertical, -float64(value)*scrollStep, -value)
			})
		case evdev.REL_HWHEEL:
			e.emit(func(r *Router) {
				r.HandleRawPointerScroll(ms, AxisHorizontal, float64(value)*scrollStep, value)
			})
		}
	case evdev.EV_ABS:
		st.handleAbs(code, value)
	case evdev.EV_KEY:
		e.handleKey(ms, code, value)
	case evdev.EV_SYN:
		if code == evdev.SYN_REPORT {
			e.flush(st, ms)
		}
	}
}

// flush emits what a device reported since the last SYN_REPORT.
func (e *EvdevSource) flush(st *deviceState, ms uint32) {
	if st.dx != 0 || st.dy != 0 {
		fx, fy := float64(st.dx), float64(st.dy)
		e.emit(func(r *Router) { r.HandleRawPointerMotion(ms, fx, fy) })
		st.dx, st.dy = 0, 0
	}

	// Touchscreens mirror the first contact on ABS_X/ABS_Y.
	if st.absMoved && !st.multitouch() {
		nx, ny := st.absX.normalize(st.ax), st.absY.normalize(st.ay)
		e.emit(func(r *Router) { r.HandleRawPointerMotionAbsolute(ms, nx, ny) })
	}
	st.absMoved = false

	touched := false
	for _, n := range st.changedSlots() {
		slot := st.slots[n]
		slot.changed = false
		nx, ny := st.mtX.normalize(slot.x), st.mtY.normalize(slot.y)

		switch {
		case slot.tracking >= 0 && !slot.down:
			slot.down = true
			e.emit(func(r *Router) { r.HandleRawTouchDown(ms, n, nx*r.width, ny*r.height) })
		case slot.tracking >= 0:
			e.emit(func(r *Router) { r.HandleRawTouchMotion(ms, n, nx*r.width, ny*r.height) })
		case slot.down:
			slot.down = false
			e.emit(func(r *Router) { r.HandleRawTouchUp(ms, n) })
		default:
			continue
		}
		touched = true
	}
	if touched {
		e.emit(func(r *Router) { r.HandleRawTouchFrame() })
	}
}

func (e *EvdevSource) handleKey(ms uint32, code uint16, value int32) {
	// Kernel autorepeat (value 2) is ignored; the router repeats keys itself.
	if value != 0 && value != 1 {
		return
	}
	pressed := value == 1

	switch {
	case code >= evdev.BTN_LEFT && code <= evdev.BTN_TASK:
		e.emit(func(r *Router) { r.HandleRawPointerButton(ms, uint32(code), pressed) })
	case code < evdev.BTN_MISC:
		e.emit(func(r *Router) { r.HandleRawKeyboardInput(ms, uint32(code), pressed) })
	}
}

func eventTime(ev evdev.InputEvent) uint32 {
	return uint32(int64(ev.Time.Sec)*1000 + int64(ev.Time.Usec)/1000)
}

// isPointerDevice reports whether dev has mouse buttons and either
// relative X/Y axes or absolute ones. Touchpads report absolute axes too
// but are recognised by their finger tool or multitouch axes and skipped.
func isPointerDevice(dev *evdev.InputDevice) bool {
	keys := dev.CapabilitiesFlat[evdev.EV_KEY]
	if !containsCode(keys, evdev.BTN_LEFT) && !containsCode(keys, evdev.BTN_RIGHT) && !containsCode(keys, evdev.BTN_MIDDLE) {
		return false
	}
	rel := dev.CapabilitiesFlat[evdev.EV_REL]
	if containsCode(rel, evdev.REL_X) && containsCode(rel, evdev.REL_Y) {
		return true
	}
	abs := dev.CapabilitiesFlat[evdev.EV_ABS]
	return containsCode(abs, evdev.ABS_X) && containsCode(abs, evdev.ABS_Y) &&
		!containsCode(keys, evdev.BTN_TOOL_FINGER) && !hasMultitouch(dev)
}

// isTouchDevice reports whether dev is a multitouch screen.
func isTouchDevice(dev *evdev.InputDevice) bool {
	keys := dev.CapabilitiesFlat[evdev.EV_KEY]
	return hasMultitouch(dev) && !containsCode(keys, evdev.BTN_LEFT) && !containsCode(keys, evdev.BTN_TOOL_FINGER)
}

func hasMultitouch(dev *evdev.InputDevice) bool {
	abs := dev.CapabilitiesFlat[evdev.EV_ABS]
	return containsCode(abs, evdev.ABS_MT_POSITION_X) && containsCode(abs, evdev.ABS_MT_POSITION_Y)
}

// isKeyboardDevice reports whether dev has letter keys. Power and video
// buttons also report EV_KEY and are skipped by name.
func isKeyboardDevice(dev *evdev.InputDevice) bool {
	name := strings.ToLower(dev.Name)
	for _, skip := range []string{"power", "video", "sleep", "button"} {
		if strings.Contains(name, skip) {
			return false
		}
	}
	for _, key := range dev.CapabilitiesFlat[evdev.EV_KEY] {
		if key >= evdev.KEY_A && key <= evdev.KEY_Z {
			return true
		}
	}
	return false
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
