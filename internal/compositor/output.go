package compositor

import (
	"github.com/bnema/waycore/internal/dispatch"
	"github.com/bnema/waycore/internal/registry"
)

// wl_output events.
const (
	outputEventGeometry    uint16 = 0
	outputEventMode        uint16 = 1
	outputEventDone        uint16 = 2
	outputEventScale       uint16 = 3
	outputEventName        uint16 = 4
	outputEventDescription uint16 = 5
)

const outputRelease = 0

// wl_output mode flags.
const (
	modeCurrent   uint32 = 0x1
	modePreferred uint32 = 0x2
)

const (
	subpixelUnknown int32 = 0
	transformNormal int32 = 0
)

// physicalSize estimates the size in millimeters at 96 dpi.
func physicalSize(px int32) int32 {
	return px * 254 / 960
}

func (c *Compositor) bindOutput(client registry.ClientID, id, version uint32) error {
	o := c.output
	c.outputs[objectKey{client, id}] = struct{}{}

	c.post(client, id, outputEventGeometry, int32(0), int32(0), physicalSize(o.Width), physicalSize(o.Height),
		subpixelUnknown, o.Make, o.Model, transformNormal)
	c.post(client, id, outputEventMode, modeCurrent|modePreferred, o.Width, o.Height, o.RefreshMHz)
	if version >= 2 {
		c.post(client, id, outputEventScale, o.Scale)
	}
	if version >= 4 {
		c.post(client, id, outputEventName, o.Name)
		c.post(client, id, outputEventDescription, o.Description)
	}
	if version >= 2 {
		c.post(client, id, outputEventDone)
	}
	return nil
}

func (c *Compositor) handleOutput(req *dispatch.Request) error {
	if req.Spec.Opcode == outputRelease {
		delete(c.outputs, objectKey{req.Client, req.Object.ID})
	}
	return nil
}
