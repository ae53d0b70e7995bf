package compositor

import (
	"github.com/bnema/waycore/internal/dispatch"
	"github.com/bnema/waycore/internal/protocol"
	"github.com/bnema/waycore/internal/surface"
)

// wl_subcompositor and wl_subsurface requests.
const (
	subcompositorDestroy       = 0
	subcompositorGetSubsurface = 1

	subsurfaceDestroy     = 0
	subsurfaceSetPosition = 1
	subsurfacePlaceAbove  = 2
	subsurfacePlaceBelow  = 3
	subsurfaceSetSync     = 4
	subsurfaceSetDesync   = 5
)

// bad_surface is error 0 of both wl_subcompositor and wl_subsurface.
const subsurfaceErrorBadSurface uint32 = 0

func (c *Compositor) surfaceArg(req *dispatch.Request, arg int) (*surface.Surface, error) {
	id := surface.ID{Client: req.Client, Object: req.Args.Object(arg)}
	s, ok := c.surfaces.Get(id)
	if !ok {
		return nil, req.Errorf(protocol.DisplayErrorImplementation, "surface %s has no state", id)
	}
	return s, nil
}

func (c *Compositor) handleSubcompositor(req *dispatch.Request) error {
	if req.Spec.Opcode != subcompositorGetSubsurface {
		return nil
	}

	child, err := c.surfaceArg(req, 1)
	if err != nil {
		return err
	}
	parent, err := c.surfaceArg(req, 2)
	if err != nil {
		return err
	}
	if err := c.surfaces.AddSubsurface(child, parent); err != nil {
		return req.Errorf(subsurfaceErrorBadSurface, "%v", err)
	}
	c.subsurfaces[objectKey{req.Client, req.Args.NewID(0)}] = child.ID()
	return nil
}

func (c *Compositor) handleSubsurface(req *dispatch.Request) error {
	key := objectKey{req.Client, req.Object.ID}
	id, ok := c.subsurfaces[key]
	if !ok {
		return req.Errorf(protocol.DisplayErrorImplementation, "sub-surface %d has no state", req.Object.ID)
	}
	if req.Spec.Opcode == subsurfaceDestroy {
		delete(c.subsurfaces, key)
		if child, ok := c.surfaces.Get(id); ok {
			c.surfaces.DetachSubsurface(child)
		}
		return nil
	}

	// Requests on a sub-surface whose wl_surface is gone are ignored.
	child, ok := c.surfaces.Get(id)
	if !ok {
		return nil
	}

	switch req.Spec.Opcode {
	case subsurfaceSetPosition:
		return c.surfaces.SetPosition(child, req.Args.Int(0), req.Args.Int(1))

	case subsurfacePlaceAbove, subsurfacePlaceBelow:
		sibling, err := c.surfaceArg(req, 0)
		if err != nil {
			return err
		}
		place := c.surfaces.PlaceAbove
		if req.Spec.Opcode == subsurfacePlaceBelow {
			place = c.surfaces.PlaceBelow
		}
		if err := place(child, sibling); err != nil {
			return req.Errorf(subsurfaceErrorBadSurface, "%v", err)
		}

	case subsurfaceSetSync:
		return c.surfaces.SetSync(child, true)

	case subsurfaceSetDesync:
		return c.surfaces.SetSync(child, false)
	}
	return nil
}
