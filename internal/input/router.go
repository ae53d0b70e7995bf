// Package input routes raw device events to the focused client surfaces.
//
// The Router runs on the reactor goroutine. It owns the seat focus state,
// allocates serials, applies pointer acceleration and keyboard modifier
// tracking, and schedules key repeat through the reactor's timers. Events
// leave through an EventSink, which in the server is backed by the
// dispatcher's validated event path.
package input

import (
	"math"
	"sort"
	"time"

	"github.com/bnema/waycore/internal/logger"
	"github.com/bnema/waycore/internal/registry"
	"github.com/bnema/waycore/internal/surface"
)

// Axis is a wl_pointer.axis value.
type Axis uint32

const (
	AxisVertical   Axis = 0
	AxisHorizontal Axis = 1
)

// Hit is the result of a spatial lookup, with surface-local coordinates.
type Hit struct {
	Surface surface.ID
	X, Y    float64
}

// SurfaceLocator is the spatial index over mapped surfaces.
type SurfaceLocator interface {
	// SurfaceAt returns the topmost surface accepting input at the global
	// position.
	SurfaceAt(x, y float64) (Hit, bool)
	// SurfaceOrigin returns the global position of a surface's top-left
	// corner.
	SurfaceOrigin(id surface.ID) (x, y float64, ok bool)
}

// MaxRepeatRate caps the key repeat rate in Hz.
const MaxRepeatRate = 1000

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks on the reactor after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// KeyEvent is a processed key transition.
type KeyEvent struct {
	Serial    uint32
	Time      uint32
	Key       uint32
	Keysym    uint32
	Pressed   bool
	Repeat    bool
	Modifiers Modifiers
}

// EventSink receives processed input events addressed to a surface.
type EventSink interface {
	PointerEnter(target surface.ID, serial uint32, x, y float64)
	PointerLeave(target surface.ID, serial uint32)
	PointerMotion(target surface.ID, timeMs uint32, x, y float64)
	PointerButton(target surface.ID, serial, timeMs, button uint32, pressed bool)
	PointerAxis(target surface.ID, timeMs uint32, axis Axis, value float64, discrete int32)
	PointerFrame(target surface.ID)

	KeyboardEnter(target surface.ID, serial uint32, keys []uint32)
	KeyboardLeave(target surface.ID, serial uint32)
	KeyboardKey(target surface.ID, ev KeyEvent)
	KeyboardModifiers(target surface.ID, serial uint32, mods Modifiers)

	TouchDown(target surface.ID, serial, timeMs uint32, id int32, x, y float64)
	TouchUp(target surface.ID, serial, timeMs uint32, id int32)
	TouchMotion(target surface.ID, timeMs uint32, id int32, x, y float64)
	TouchFrame(target surface.ID)
	TouchCancel(target surface.ID)
}

// RouterConfig holds the tunables that config reloads may change.
type RouterConfig struct {
	Width, Height int32
	RepeatRate    int32
	RepeatDelay   int32
	Accel         *Accelerator
	Keymap        *Keymap
}

type repeatState struct {
	gen       uint64
	key       uint32
	target    surface.ID
	hasTarget bool
	mods      Modifiers
	timer     Timer
}

type forgetReason int

const (
	forgetReleased forgetReason = iota
	forgetSurfaceDestroyed
	forgetClientGone
)

func (r forgetReason) String() string {
	switch r {
	case forgetReleased:
		return "released"
	case forgetSurfaceDestroyed:
		return "surface destroyed"
	default:
		return "client disconnected"
	}
}

// Router turns raw device events into focused client events.
type Router struct {
	serials *SerialCounter
	focus   *FocusManager
	locator SurfaceLocator
	sink    EventSink
	sched   Scheduler
	keymap  *Keymap
	accel   *Accelerator
	start   time.Time

	x, y          float64
	width, height float64

	keys    []uint32
	buttons map[uint32]bool
	mods    *modifierState

	repeatRate  int32
	repeatDelay int32
	repeat      *repeatState
	repeatGen   uint64

	touchUp map[surface.ID]bool
}

// NewRouter wires a router to its collaborators.
func NewRouter(serials *SerialCounter, locator SurfaceLocator, sink EventSink, sched Scheduler, cfg RouterConfig) *Router {
	r := &Router{
		serials: serials,
		focus:   NewFocusManager(),
		locator: locator,
		sink:    sink,
		sched:   sched,
		start:   time.Now(),
		buttons: make(map[uint32]bool),
		mods:    newModifierState(),
		touchUp: make(map[surface.ID]bool),
	}
	r.Configure(cfg)
	return r
}

// Configure applies new output bounds, repeat and acceleration settings.
// Zero bounds and nil collaborators keep the current values.
func (r *Router) Configure(cfg RouterConfig) {
	if cfg.Width > 0 && cfg.Height > 0 {
		r.width, r.height = float64(cfg.Width), float64(cfg.Height)
		r.x, r.y = r.clamp(r.x, r.y)
	}
	r.repeatRate = min(max(cfg.RepeatRate, 0), MaxRepeatRate)
	r.repeatDelay = max(cfg.RepeatDelay, 0)
	if cfg.Accel != nil {
		r.accel = cfg.Accel
	} else if r.accel == nil {
		r.accel = NewAccelerator(AccelFlat, 0)
	}
	if cfg.Keymap != nil {
		r.keymap = cfg.Keymap
	} else if r.keymap == nil {
		r.keymap, _ = NewKeymap("us")
	}
	if r.repeatRate == 0 {
		r.cancelRepeat()
	}
}

// Focus exposes the focus state for inspection.
func (r *Router) Focus() *FocusManager {
	return r.focus
}

// Keymap returns the active keymap.
func (r *Router) Keymap() *Keymap {
	return r.keymap
}

// RepeatInfo returns the rate in Hz and delay in milliseconds.
func (r *Router) RepeatInfo() (rate, delay int32) {
	return r.repeatRate, r.repeatDelay
}

// Position returns the global pointer position.
func (r *Router) Position() (float64, float64) {
	return r.x, r.y
}

// Modifiers returns the current modifier state.
func (r *Router) Modifiers() Modifiers {
	return r.mods.snapshot()
}

// PressedKeys returns the keys currently held, in press order.
func (r *Router) PressedKeys() []uint32 {
	return append([]uint32(nil), r.keys...)
}

func (r *Router) now() uint32 {
	return uint32(time.Since(r.start).Milliseconds())
}

func (r *Router) clamp(x, y float64) (float64, float64) {
	if r.width <= 0 || r.height <= 0 {
		return x, y
	}
	return math.Max(0, math.Min(x, r.width-1)), math.Max(0, math.Min(y, r.height-1))
}

func (r *Router) local(id surface.ID, x, y float64) (float64, float64) {
	ox, oy, ok := r.locator.SurfaceOrigin(id)
	if !ok {
		return 0, 0
	}
	return x - ox, y - oy
}

// HandleRawPointerMotion applies acceleration to a relative motion and
// routes the result.
func (r *Router) HandleRawPointerMotion(timeMs uint32, dx, dy float64) {
	ax, ay := r.accel.Apply(dx, dy)
	r.x, r.y = r.clamp(r.x+ax, r.y+ay)
	r.processMotion(timeMs)
}

// HandleRawPointerMotionAbsolute warps the pointer to a position given in
// [0, 1] on each axis of the output.
func (r *Router) HandleRawPointerMotionAbsolute(timeMs uint32, nx, ny float64) {
	r.x, r.y = r.clamp(nx*r.width, ny*r.height)
	r.processMotion(timeMs)
}

func (r *Router) processMotion(timeMs uint32) {
	serial := r.serials.Next()

	if g, ok := r.focus.ActiveGrab(GrabPointer); ok {
		sx, sy := r.local(g.Surface, r.x, r.y)
		target := g.Surface
		r.changePointerFocus(&target, serial, sx, sy)
		r.sink.PointerMotion(g.Surface, timeMs, sx, sy)
		r.sink.PointerFrame(g.Surface)
		return
	}

	hit, ok := r.locator.SurfaceAt(r.x, r.y)
	if !ok {
		r.changePointerFocus(nil, serial, 0, 0)
		return
	}
	r.changePointerFocus(&hit.Surface, serial, hit.X, hit.Y)
	r.sink.PointerMotion(hit.Surface, timeMs, hit.X, hit.Y)
	r.sink.PointerFrame(hit.Surface)
}

// changePointerFocus sends leave to the old focus and enter to the new
// one. It reports whether the focus changed.
func (r *Router) changePointerFocus(target *surface.ID, serial uint32, sx, sy float64) bool {
	cur, had := r.focus.PointerFocus()
	if target == nil && !had || target != nil && had && *target == cur {
		return false
	}

	if had {
		r.sink.PointerLeave(cur, serial)
		r.sink.PointerFrame(cur)
	}
	if target == nil {
		r.focus.setPointer(nil)
		return true
	}
	next := *target
	r.focus.setPointer(&next)
	r.sink.PointerEnter(next, serial, sx, sy)
	return true
}

// Repick re-runs the hit test at the current position, for use after the
// scene changed under a still pointer.
func (r *Router) Repick() {
	if _, grabbed := r.focus.ActiveGrab(GrabPointer); grabbed {
		return
	}
	serial := r.serials.Next()
	hit, ok := r.locator.SurfaceAt(r.x, r.y)
	if !ok {
		r.changePointerFocus(nil, serial, 0, 0)
		return
	}
	if r.changePointerFocus(&hit.Surface, serial, hit.X, hit.Y) {
		r.sink.PointerFrame(hit.Surface)
	}
}

// HandleRawPointerButton routes a button transition. A press without a
// grab moves keyboard focus to the surface under the pointer.
func (r *Router) HandleRawPointerButton(timeMs, button uint32, pressed bool) {
	if pressed {
		r.buttons[button] = true
	} else {
		delete(r.buttons, button)
	}
	serial := r.serials.Next()

	if g, ok := r.focus.ActiveGrab(GrabPointer); ok {
		r.sink.PointerButton(g.Surface, serial, timeMs, button, pressed)
		r.sink.PointerFrame(g.Surface)
		return
	}

	if target, ok := r.focus.PointerFocus(); ok {
		r.sink.PointerButton(target, serial, timeMs, button, pressed)
		r.sink.PointerFrame(target)
	}

	if !pressed {
		return
	}
	if _, grabbed := r.focus.ActiveGrab(GrabKeyboard); grabbed {
		return
	}
	if hit, ok := r.locator.SurfaceAt(r.x, r.y); ok {
		r.setKeyboardFocus(&hit.Surface, serial)
	} else {
		r.setKeyboardFocus(nil, serial)
	}
}

// HandleRawPointerScroll routes an axis event.
func (r *Router) HandleRawPointerScroll(timeMs uint32, axis Axis, value float64, discrete int32) {
	target, ok := r.pointerTarget()
	if !ok {
		return
	}
	r.sink.PointerAxis(target, timeMs, axis, value, discrete)
	r.sink.PointerFrame(target)
}

func (r *Router) pointerTarget() (surface.ID, bool) {
	if g, ok := r.focus.ActiveGrab(GrabPointer); ok {
		return g.Surface, true
	}
	return r.focus.PointerFocus()
}

// HandleRawKeyboardInput routes a key transition, updates modifiers and
// drives key repeat.
func (r *Router) HandleRawKeyboardInput(timeMs, code uint32, pressed bool) {
	held := indexOfKey(r.keys, code) >= 0
	if pressed == held {
		return
	}
	if pressed {
		r.keys = append(r.keys, code)
	} else {
		r.keys = removeKey(r.keys, code)
	}

	changed := r.mods.update(r.keymap, code, pressed)
	mods := r.mods.snapshot()
	serial := r.serials.Next()
	ev := KeyEvent{
		Serial:    serial,
		Time:      timeMs,
		Key:       code,
		Keysym:    r.keymap.Keysym(code, mods),
		Pressed:   pressed,
		Modifiers: mods,
	}

	if target, ok := r.focus.KeyboardFocus(); ok {
		r.sink.KeyboardKey(target, ev)
		if changed {
			r.sink.KeyboardModifiers(target, serial, mods)
		}
	}

	if pressed {
		r.cancelRepeat()
		if r.keymap.Repeats(code) && r.repeatRate > 0 {
			r.startRepeat(code, mods)
		}
		return
	}
	if r.repeat != nil && r.repeat.key == code {
		r.cancelRepeat()
	}
}

func (r *Router) startRepeat(code uint32, mods Modifiers) {
	r.repeatGen++
	st := &repeatState{gen: r.repeatGen, key: code, mods: mods}
	st.target, st.hasTarget = r.focus.KeyboardFocus()
	gen := st.gen
	st.timer = r.sched.AfterFunc(time.Duration(r.repeatDelay)*time.Millisecond, func() {
		r.repeatTick(gen)
	})
	r.repeat = st
}

func (r *Router) repeatTick(gen uint64) {
	st := r.repeat
	if st == nil || st.gen != gen || r.repeatRate <= 0 {
		return
	}

	if target, ok := r.focus.KeyboardFocus(); ok {
		r.sink.KeyboardKey(target, KeyEvent{
			Serial:    r.serials.Next(),
			Time:      r.now(),
			Key:       st.key,
			Keysym:    r.keymap.Keysym(st.key, st.mods),
			Pressed:   true,
			Repeat:    true,
			Modifiers: st.mods,
		})
	}

	interval := time.Second / time.Duration(r.repeatRate)
	st.timer = r.sched.AfterFunc(interval, func() {
		r.repeatTick(gen)
	})
}

func (r *Router) cancelRepeat() {
	if r.repeat == nil {
		return
	}
	if r.repeat.timer != nil {
		r.repeat.timer.Stop()
	}
	r.repeat = nil
}

// Repeating reports the key currently repeating, if any.
func (r *Router) Repeating() (uint32, bool) {
	if r.repeat == nil {
		return 0, false
	}
	return r.repeat.key, true
}

// SetKeyboardFocus moves keyboard focus to id. Setting the current focus
// again is a no-op.
func (r *Router) SetKeyboardFocus(id surface.ID, serial uint32) {
	r.setKeyboardFocus(&id, serial)
}

// ClearKeyboardFocus removes keyboard focus.
func (r *Router) ClearKeyboardFocus(serial uint32) {
	r.setKeyboardFocus(nil, serial)
}

func (r *Router) setKeyboardFocus(target *surface.ID, serial uint32) {
	cur, had := r.focus.KeyboardFocus()
	if target == nil && !had || target != nil && had && *target == cur {
		return
	}

	r.cancelRepeat()
	if had {
		r.sink.KeyboardLeave(cur, serial)
	}
	if target == nil {
		r.focus.setKeyboard(nil)
		return
	}
	next := *target
	r.focus.setKeyboard(&next)
	r.sink.KeyboardEnter(next, serial, r.PressedKeys())
	r.sink.KeyboardModifiers(next, serial, r.mods.snapshot())
}

// HandleRawTouchDown starts a touch point at a global position. A hit also
// moves keyboard focus to the touched surface.
func (r *Router) HandleRawTouchDown(timeMs uint32, id int32, x, y float64) {
	hit, ok := r.locator.SurfaceAt(x, y)
	if !ok {
		return
	}
	serial := r.serials.Next()
	if _, grabbed := r.focus.ActiveGrab(GrabKeyboard); !grabbed {
		r.setKeyboardFocus(&hit.Surface, serial)
	}
	r.focus.touch[id] = hit.Surface
	r.sink.TouchDown(hit.Surface, serial, timeMs, id, hit.X, hit.Y)
}

// HandleRawTouchMotion moves a touch point. The surface it went down on
// keeps receiving it.
func (r *Router) HandleRawTouchMotion(timeMs uint32, id int32, x, y float64) {
	target, ok := r.focus.TouchFocus(id)
	if !ok {
		return
	}
	sx, sy := r.local(target, x, y)
	r.sink.TouchMotion(target, timeMs, id, sx, sy)
}

// HandleRawTouchUp ends a touch point.
func (r *Router) HandleRawTouchUp(timeMs uint32, id int32) {
	target, ok := r.focus.TouchFocus(id)
	if !ok {
		return
	}
	r.sink.TouchUp(target, r.serials.Next(), timeMs, id)
	delete(r.focus.touch, id)
	r.touchUp[target] = true
}

// HandleRawTouchFrame ends a group of touch events. Every surface with an
// active touch point, or one lifted since the last frame, gets one frame.
func (r *Router) HandleRawTouchFrame() {
	for _, target := range r.touchTargets() {
		r.sink.TouchFrame(target)
	}
	r.touchUp = make(map[surface.ID]bool)
}

// HandleRawTouchCancel cancels every active touch point.
func (r *Router) HandleRawTouchCancel() {
	for _, target := range r.touchTargets() {
		r.sink.TouchCancel(target)
	}
	r.focus.touch = make(map[int32]surface.ID)
	r.touchUp = make(map[surface.ID]bool)
}

func (r *Router) touchTargets() []surface.ID {
	set := make(map[surface.ID]bool, len(r.focus.touch)+len(r.touchUp))
	for _, s := range r.focus.touch {
		set[s] = true
	}
	for s := range r.touchUp {
		set[s] = true
	}
	out := make([]surface.ID, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sortIDs(out)
	return out
}

// SetPointerGrab routes every pointer event to id until released. A new
// pointer grab replaces the previous one.
func (r *Router) SetPointerGrab(id surface.ID, serial uint32) {
	r.focus.addGrab(Grab{Kind: GrabPointer, Surface: id, Serial: serial})
	sx, sy := r.local(id, r.x, r.y)
	if r.changePointerFocus(&id, r.serials.Next(), sx, sy) {
		r.sink.PointerFrame(id)
	}
	logger.Debugf("[INPUT] Pointer grab taken by %s (serial %d)", id, serial)
}

// SetKeyboardGrab pins keyboard focus to id until released.
func (r *Router) SetKeyboardGrab(id surface.ID, serial uint32) {
	r.focus.addGrab(Grab{Kind: GrabKeyboard, Surface: id, Serial: serial})
	r.setKeyboardFocus(&id, r.serials.Next())
	logger.Debugf("[INPUT] Keyboard grab taken by %s (serial %d)", id, serial)
}

// ReleaseGrab drops every grab held by id, as requested by its client.
func (r *Router) ReleaseGrab(id surface.ID) {
	r.forget(func(s surface.ID) bool { return s == id }, forgetReleased)
}

// SurfaceDestroyed drops every grab, focus and repeat referencing id.
func (r *Router) SurfaceDestroyed(id surface.ID) {
	r.forget(func(s surface.ID) bool { return s == id }, forgetSurfaceDestroyed)
}

// ClientDisconnected drops every grab, focus and repeat referencing the
// client's surfaces.
func (r *Router) ClientDisconnected(client registry.ClientID) {
	r.forget(func(s surface.ID) bool { return s.Client == client }, forgetClientGone)
}

// forget is the single cleanup path for grabs and key repeat. Released
// grabs keep focus; destroyed surfaces and departed clients lose every
// reference without receiving events.
func (r *Router) forget(match func(surface.ID) bool, reason forgetReason) {
	removed := r.focus.removeGrabs(func(g Grab) bool { return match(g.Surface) })

	var releasedPointer, releasedKeyboard bool
	for _, g := range removed {
		logger.Debugf("[INPUT] %s grab of %s dropped: %s", g.Kind, g.Surface, reason)
		switch g.Kind {
		case GrabPointer:
			releasedPointer = true
		case GrabKeyboard:
			releasedKeyboard = true
		}
	}

	if st := r.repeat; st != nil && st.hasTarget && match(st.target) {
		if reason != forgetReleased || releasedKeyboard {
			r.cancelRepeat()
		}
	}

	if reason == forgetReleased {
		if releasedPointer {
			r.Repick()
		}
		return
	}

	if target, ok := r.focus.KeyboardFocus(); ok && match(target) {
		r.cancelRepeat()
	}
	r.focus.drop(match)
	for s := range r.touchUp {
		if match(s) {
			delete(r.touchUp, s)
		}
	}
}

func indexOfKey(keys []uint32, code uint32) int {
	for i, k := range keys {
		if k == code {
			return i
		}
	}
	return -1
}

func removeKey(keys []uint32, code uint32) []uint32 {
	i := indexOfKey(keys, code)
	if i < 0 {
		return keys
	}
	return append(keys[:i], keys[i+1:]...)
}

func sortIDs(ids []surface.ID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Client != ids[j].Client {
			return ids[i].Client < ids[j].Client
		}
		return ids[i].Object < ids[j].Object
	})
}
