package compositor

import (
	"github.com/bnema/waycore/internal/dispatch"
	"github.com/bnema/waycore/internal/input"
	"github.com/bnema/waycore/internal/logger"
	"github.com/bnema/waycore/internal/registry"
	"github.com/bnema/waycore/internal/surface"
	"github.com/bnema/waycore/internal/wire"
)

// wl_seat requests.
const (
	seatGetPointer  = 0
	seatGetKeyboard = 1
	seatGetTouch    = 2
	seatRelease     = 3
)

// wl_seat events.
const (
	seatEventCapabilities uint16 = 0
	seatEventName         uint16 = 1
)

// wl_seat capabilities.
const (
	capPointer  uint32 = 1
	capKeyboard uint32 = 2
	capTouch    uint32 = 4
)

// wl_pointer, wl_keyboard and wl_touch requests.
const (
	pointerSetCursor = 0
	pointerRelease   = 1
	keyboardRelease  = 0
	touchRelease     = 0
)

func (c *Compositor) bindSeat(client registry.ClientID, id, version uint32) error {
	c.post(client, id, seatEventCapabilities, capPointer|capKeyboard|capTouch)
	if version >= 2 {
		c.post(client, id, seatEventName, c.seat.Name())
	}
	return nil
}

func (c *Compositor) handleSeat(req *dispatch.Request) error {
	if req.Spec.Opcode == seatRelease {
		return nil
	}

	// The new object inherits the seat's version.
	rid := input.ResourceID{Client: req.Client, Object: req.Args.NewID(0)}
	version := req.Object.Version

	switch req.Spec.Opcode {
	case seatGetPointer:
		c.seat.AddPointer(rid, version)
		if focus, ok := c.router.Focus().PointerFocus(); ok && focus.Client == req.Client {
			c.enterPointer(rid, version, focus)
		}

	case seatGetKeyboard:
		c.seat.AddKeyboard(rid, version)
		c.sendKeymap(rid, version)
		if focus, ok := c.router.Focus().KeyboardFocus(); ok && focus.Client == req.Client {
			c.enterKeyboard(rid, focus)
		}

	case seatGetTouch:
		c.seat.AddTouch(rid, version)
	}
	return nil
}

// sendKeymap sends the keymap and repeat settings to a new keyboard. Keys
// are repeated by the server, so clients are told not to repeat them.
func (c *Compositor) sendKeymap(rid input.ResourceID, version uint32) {
	km := c.router.Keymap()
	fd, err := km.NewFD()
	if err != nil {
		logger.Errorf("Failed to create keymap fd for client %d: %v", rid.Client, err)
		return
	}
	c.post(rid.Client, rid.Object, keyboardEventKeymap, uint32(km.Format()), fd, km.Size())

	if version >= 4 {
		_, delay := c.router.RepeatInfo()
		c.post(rid.Client, rid.Object, keyboardEventRepeatInfo, int32(0), delay)
	}
}

// Configure applies new input settings. When the keymap or the repeat
// delay changed, every live keyboard is sent the new values.
func (c *Compositor) Configure(cfg input.RouterConfig) {
	oldKeymap := c.router.Keymap()
	_, oldDelay := c.router.RepeatInfo()
	c.router.Configure(cfg)

	_, delay := c.router.RepeatInfo()
	if c.router.Keymap() == oldKeymap && delay == oldDelay {
		return
	}
	for _, client := range c.d.Registry().Clients() {
		for _, k := range c.seat.Keyboards(client) {
			c.sendKeymap(k.ID, k.Version)
		}
	}
}

// enterPointer sends the current focus to a pointer created while the
// pointer was over one of its client's surfaces.
func (c *Compositor) enterPointer(rid input.ResourceID, version uint32, focus surface.ID) {
	ox, oy, ok := c.scene.SurfaceOrigin(focus)
	if !ok {
		return
	}
	x, y := c.router.Position()
	serial := c.serials.Next()
	c.post(rid.Client, rid.Object, pointerEventEnter, serial, focus.Object, wire.FixedFromFloat(x-ox), wire.FixedFromFloat(y-oy))
	c.seat.NotePointerEnter(rid, serial)
	if version >= 5 {
		c.post(rid.Client, rid.Object, pointerEventFrame)
	}
}

// enterKeyboard sends the current focus to a keyboard created after the
// focus moved to its client.
func (c *Compositor) enterKeyboard(rid input.ResourceID, focus surface.ID) {
	serial := c.serials.Next()
	c.post(rid.Client, rid.Object, keyboardEventEnter, serial, focus.Object, keyArray(c.router.PressedKeys()))
	mods := c.router.Modifiers()
	c.post(rid.Client, rid.Object, keyboardEventModifiers, serial, mods.Depressed, mods.Latched, mods.Locked, mods.Group)
}

func (c *Compositor) handlePointer(req *dispatch.Request) error {
	rid := input.ResourceID{Client: req.Client, Object: req.Object.ID}

	switch req.Spec.Opcode {
	case pointerSetCursor:
		var surf *surface.Surface
		if req.Args.Object(1) != 0 {
			s, err := c.surfaceArg(req, 1)
			if err != nil {
				return err
			}
			surf = s
		}
		c.seat.SetCursor(rid, req.Args.Uint(0), surf, req.Args.Int(2), req.Args.Int(3))

	case pointerRelease:
		c.seat.ReleasePointer(rid)
	}
	return nil
}

func (c *Compositor) handleKeyboard(req *dispatch.Request) error {
	if req.Spec.Opcode == keyboardRelease {
		c.seat.ReleaseKeyboard(input.ResourceID{Client: req.Client, Object: req.Object.ID})
	}
	return nil
}

func (c *Compositor) handleTouch(req *dispatch.Request) error {
	if req.Spec.Opcode == touchRelease {
		c.seat.ReleaseTouch(input.ResourceID{Client: req.Client, Object: req.Object.ID})
	}
	return nil
}
