package compositor

import (
	"github.com/bnema/waycore/internal/dispatch"
	"github.com/bnema/waycore/internal/protocol"
	"github.com/bnema/waycore/internal/surface"
)

// wl_compositor requests.
const (
	compositorCreateSurface = 0
	compositorCreateRegion  = 1
)

// wl_region requests.
const (
	regionDestroy  = 0
	regionAdd      = 1
	regionSubtract = 2
)

// wl_surface requests.
const (
	surfaceDestroy            = 0
	surfaceAttach             = 1
	surfaceDamage             = 2
	surfaceFrame              = 3
	surfaceSetOpaqueRegion    = 4
	surfaceSetInputRegion     = 5
	surfaceCommit             = 6
	surfaceSetBufferTransform = 7
	surfaceSetBufferScale     = 8
	surfaceDamageBuffer       = 9
	surfaceOffset             = 10
)

// wl_surface error codes.
const (
	surfaceErrorInvalidScale     uint32 = 0
	surfaceErrorInvalidTransform uint32 = 1
	surfaceErrorInvalidOffset    uint32 = 3
)

func rectArg(args dispatch.Args, first int) surface.Rect {
	return surface.Rect{
		X:      args.Int(first),
		Y:      args.Int(first + 1),
		Width:  args.Int(first + 2),
		Height: args.Int(first + 3),
	}
}

func (c *Compositor) handleCompositor(req *dispatch.Request) error {
	id := req.Args.NewID(0)
	switch req.Spec.Opcode {
	case compositorCreateSurface:
		if _, err := c.surfaces.Create(surface.ID{Client: req.Client, Object: id}); err != nil {
			return req.Errorf(protocol.DisplayErrorImplementation, "%v", err)
		}
	case compositorCreateRegion:
		c.regions[objectKey{req.Client, id}] = surface.NewRegion()
	}
	return nil
}

func (c *Compositor) handleRegion(req *dispatch.Request) error {
	key := objectKey{req.Client, req.Object.ID}
	r, ok := c.regions[key]
	if !ok {
		return req.Errorf(protocol.DisplayErrorImplementation, "region %d has no state", req.Object.ID)
	}

	switch req.Spec.Opcode {
	case regionDestroy:
		delete(c.regions, key)
	case regionAdd:
		r.Add(rectArg(req.Args, 0))
	case regionSubtract:
		r.Subtract(rectArg(req.Args, 0))
	}
	return nil
}

// region resolves a nullable wl_region argument. A null region is nil.
func (c *Compositor) region(req *dispatch.Request, arg int) (*surface.Region, error) {
	id := req.Args.Object(arg)
	if id == 0 {
		return nil, nil
	}
	r, ok := c.regions[objectKey{req.Client, id}]
	if !ok {
		return nil, req.Errorf(protocol.DisplayErrorImplementation, "region %d has no state", id)
	}
	return r, nil
}

func (c *Compositor) handleSurface(req *dispatch.Request) error {
	id := surface.ID{Client: req.Client, Object: req.Object.ID}
	s, ok := c.surfaces.Get(id)
	if !ok {
		return req.Errorf(protocol.DisplayErrorImplementation, "surface %s has no state", id)
	}
	args := req.Args

	switch req.Spec.Opcode {
	case surfaceDestroy:
		return c.surfaces.Destroy(id)

	case surfaceAttach:
		x, y := args.Int(1), args.Int(2)
		if req.Object.Version >= 5 && (x != 0 || y != 0) {
			return req.Errorf(surfaceErrorInvalidOffset, "attach offset (%d, %d) must be zero since version 5", x, y)
		}
		var buf surface.Buffer
		if bid := args.Object(0); bid != 0 {
			b, ok := c.buffers[objectKey{req.Client, bid}]
			if !ok {
				return req.Errorf(protocol.DisplayErrorImplementation, "buffer %d has no storage", bid)
			}
			buf = b
		}
		s.Attach(buf, x, y)

	case surfaceDamage:
		s.Damage(rectArg(args, 0))

	case surfaceDamageBuffer:
		s.DamageBuffer(rectArg(args, 0))

	case surfaceFrame:
		s.Frame(args.NewID(0))

	case surfaceSetOpaqueRegion:
		r, err := c.region(req, 0)
		if err != nil {
			return err
		}
		s.SetOpaqueRegion(r)

	case surfaceSetInputRegion:
		r, err := c.region(req, 0)
		if err != nil {
			return err
		}
		s.SetInputRegion(r)

	case surfaceCommit:
		c.surfaces.Commit(s)

	case surfaceSetBufferTransform:
		if err := s.SetBufferTransform(args.Int(0)); err != nil {
			return req.Errorf(surfaceErrorInvalidTransform, "%v", err)
		}

	case surfaceSetBufferScale:
		if err := s.SetBufferScale(args.Int(0)); err != nil {
			return req.Errorf(surfaceErrorInvalidScale, "%v", err)
		}

	case surfaceOffset:
		s.Offset(args.Int(0), args.Int(1))
	}
	return nil
}
