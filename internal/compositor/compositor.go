// Package compositor implements the core Wayland interfaces on top of the
// dispatcher, the surface state machine and the input router.
//
// Every handler runs on the reactor goroutine. Per-client protocol state
// that has no home in the surface manager or the seat (regions, shm pools
// and buffers, sub-surface objects, registry objects) is kept here and
// dropped when the client disconnects.
package compositor

import (
	"time"

	"github.com/bnema/waycore/internal/dispatch"
	"github.com/bnema/waycore/internal/input"
	"github.com/bnema/waycore/internal/logger"
	"github.com/bnema/waycore/internal/protocol"
	"github.com/bnema/waycore/internal/registry"
	"github.com/bnema/waycore/internal/surface"
)

// Output describes the single advertised wl_output.
type Output struct {
	Name        string
	Description string
	Make        string
	Model       string
	Width       int32
	Height      int32
	RefreshMHz  int32
	Scale       int32
}

// Options configures a Compositor.
type Options struct {
	SeatName  string
	Output    Output
	Scheduler input.Scheduler
	Input     input.RouterConfig
}

type objectKey struct {
	client registry.ClientID
	id     uint32
}

// Compositor owns the core protocol handlers and the engines behind them.
type Compositor struct {
	d        *dispatch.Dispatcher
	serials  *input.SerialCounter
	surfaces *surface.Manager
	seat     *input.Seat
	router   *input.Router
	scene    *Scene
	output   Output
	start    time.Time

	globals    []*global
	nextGlobal uint32

	registries  map[objectKey]struct{}
	regions     map[objectKey]*surface.Region
	pools       map[objectKey]*shmPool
	buffers     map[objectKey]*ShmBuffer
	subsurfaces map[objectKey]surface.ID
	outputs     map[objectKey]struct{}
}

// New creates a compositor and installs its handlers on d. It must be
// called before the first client connects.
func New(d *dispatch.Dispatcher, serials *input.SerialCounter, opts Options) *Compositor {
	if opts.SeatName == "" {
		opts.SeatName = "seat0"
	}
	if opts.Output.Scale < 1 {
		opts.Output.Scale = 1
	}

	c := &Compositor{
		d:           d,
		serials:     serials,
		seat:        input.NewSeat(opts.SeatName),
		output:      opts.Output,
		start:       time.Now(),
		registries:  make(map[objectKey]struct{}),
		regions:     make(map[objectKey]*surface.Region),
		pools:       make(map[objectKey]*shmPool),
		buffers:     make(map[objectKey]*ShmBuffer),
		subsurfaces: make(map[objectKey]surface.ID),
		outputs:     make(map[objectKey]struct{}),
	}
	c.surfaces = surface.NewManager(c)
	c.scene = NewScene(c.surfaces)

	cfg := opts.Input
	if cfg.Width == 0 || cfg.Height == 0 {
		cfg.Width, cfg.Height = opts.Output.Width, opts.Output.Height
	}
	c.router = input.NewRouter(serials, c.scene, newClientSink(d, c.seat), opts.Scheduler, cfg)

	c.surfaces.OnDestroy(c.surfaceDestroyed)
	d.OnDisconnect(c.clientDisconnected)

	c.addCoreGlobals()
	c.registerHandlers()
	return c
}

func (c *Compositor) registerHandlers() {
	handlers := map[string]dispatch.HandlerFunc{
		protocol.WlDisplay:       c.handleDisplay,
		protocol.WlRegistry:      c.handleRegistry,
		protocol.WlCompositor:    c.handleCompositor,
		protocol.WlRegion:        c.handleRegion,
		protocol.WlSurface:       c.handleSurface,
		protocol.WlShm:           c.handleShm,
		protocol.WlShmPool:       c.handleShmPool,
		protocol.WlBuffer:        c.handleBuffer,
		protocol.WlSubcompositor: c.handleSubcompositor,
		protocol.WlSubsurface:    c.handleSubsurface,
		protocol.WlSeat:          c.handleSeat,
		protocol.WlPointer:       c.handlePointer,
		protocol.WlKeyboard:      c.handleKeyboard,
		protocol.WlTouch:         c.handleTouch,
		protocol.WlOutput:        c.handleOutput,
	}
	for iface, h := range handlers {
		c.d.RegisterHandler(iface, h)
	}
}

// Surfaces returns the surface manager.
func (c *Compositor) Surfaces() *surface.Manager {
	return c.surfaces
}

// Seat returns the seat resources.
func (c *Compositor) Seat() *input.Seat {
	return c.seat
}

// Router returns the input router.
func (c *Compositor) Router() *input.Router {
	return c.router
}

// Scene returns the stacking scene.
func (c *Compositor) Scene() *Scene {
	return c.scene
}

// Output returns the advertised output.
func (c *Compositor) Output() Output {
	return c.output
}

// Map gives a surface the toplevel role and places it on top of the scene
// at the global position. Shell extensions call it once a surface is ready
// to be shown.
func (c *Compositor) Map(id surface.ID, x, y int32) error {
	s, ok := c.surfaces.Get(id)
	if !ok {
		return surface.ErrUnknownSurface
	}
	if err := s.SetRole(surface.RoleToplevel); err != nil {
		return err
	}
	c.scene.Place(id, x, y)
	c.router.Repick()
	return nil
}

// Unmap removes a surface from the scene.
func (c *Compositor) Unmap(id surface.ID) {
	if c.scene.Remove(id) {
		c.router.Repick()
	}
}

// Present fires the frame callbacks of every mapped surface, as a
// renderer does after a frame reached the screen.
func (c *Compositor) Present() {
	now := c.now()
	for _, s := range c.surfaces.Surfaces() {
		if s.Mapped() {
			c.surfaces.Presented(s, now)
		}
	}
}

// FrameDone sends wl_callback.done, which also destroys the callback.
func (c *Compositor) FrameDone(client registry.ClientID, callbackID uint32, timeMs uint32) {
	c.post(client, callbackID, callbackDone, timeMs)
}

// FrameDropped destroys a frame callback whose surface went away.
func (c *Compositor) FrameDropped(client registry.ClientID, callbackID uint32) {
	c.d.DestroyObject(client, callbackID)
}

func (c *Compositor) now() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// post sends an event and logs failures. Events to a client that is going
// away are expected to fail.
func (c *Compositor) post(client registry.ClientID, objectID uint32, opcode uint16, args ...interface{}) {
	if err := c.d.PostEvent(client, objectID, opcode, args...); err != nil {
		logger.Debugf("[COMPOSITOR] event %d to object %d of client %d: %v", opcode, objectID, client, err)
	}
}

func (c *Compositor) surfaceDestroyed(s *surface.Surface) {
	id := s.ID()
	focus, hovered := c.router.Focus().PointerFocus()
	c.router.SurfaceDestroyed(id)
	if c.scene.Remove(id) || hovered && focus == id {
		c.router.Repick()
	}
}

func (c *Compositor) clientDisconnected(client registry.ClientID) {
	c.router.ClientDisconnected(client)
	c.seat.RemoveClient(client)
	unmapped := c.scene.RemoveClient(client)
	n := c.surfaces.DestroyClient(client)
	if unmapped > 0 {
		c.router.Repick()
	}

	for key, b := range c.buffers {
		if key.client == client {
			b.destroy()
			delete(c.buffers, key)
		}
	}
	for key, p := range c.pools {
		if key.client == client {
			p.unref()
			delete(c.pools, key)
		}
	}
	for key := range c.regions {
		if key.client == client {
			delete(c.regions, key)
		}
	}
	for key := range c.subsurfaces {
		if key.client == client {
			delete(c.subsurfaces, key)
		}
	}
	for key := range c.registries {
		if key.client == client {
			delete(c.registries, key)
		}
	}
	for key := range c.outputs {
		if key.client == client {
			delete(c.outputs, key)
		}
	}
	logger.Debugf("[COMPOSITOR] client %d gone, destroyed %d surfaces", client, n)
}
