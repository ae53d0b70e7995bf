package compositor

import (
	"sort"

	"github.com/bnema/waycore/internal/dispatch"
	"github.com/bnema/waycore/internal/logger"
	"github.com/bnema/waycore/internal/protocol"
	"github.com/bnema/waycore/internal/registry"
)

// wl_display requests.
const (
	displaySync        = 0
	displayGetRegistry = 1
)

// wl_registry events.
const (
	registryGlobal       uint16 = 0
	registryGlobalRemove uint16 = 1
)

// wl_callback events.
const callbackDone uint16 = 0

// BindFunc initializes a freshly bound global object.
type BindFunc func(client registry.ClientID, id, version uint32) error

type global struct {
	name    uint32
	iface   string
	version uint32
	bind    BindFunc
}

// Global describes an advertised global.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

func (c *Compositor) addCoreGlobals() {
	c.AddGlobal(protocol.WlCompositor, 6, nil)
	c.AddGlobal(protocol.WlSubcompositor, 1, nil)
	c.AddGlobal(protocol.WlShm, 2, c.bindShm)
	c.AddGlobal(protocol.WlSeat, 9, c.bindSeat)
	c.AddGlobal(protocol.WlOutput, 4, c.bindOutput)
}

// AddGlobal advertises a global to current and future registries and
// returns its name. The interface must be in the protocol store. bind may
// be nil when binding needs no initial events.
func (c *Compositor) AddGlobal(iface string, version uint32, bind BindFunc) uint32 {
	c.nextGlobal++
	g := &global{name: c.nextGlobal, iface: iface, version: version, bind: bind}
	c.globals = append(c.globals, g)

	for key := range c.registries {
		c.post(key.client, key.id, registryGlobal, g.name, g.iface, g.version)
	}
	logger.Debugf("[COMPOSITOR] global %d: %s v%d", g.name, iface, version)
	return g.name
}

// RemoveGlobal withdraws a global from every registry.
func (c *Compositor) RemoveGlobal(name uint32) bool {
	for i, g := range c.globals {
		if g.name != name {
			continue
		}
		c.globals = append(c.globals[:i], c.globals[i+1:]...)
		for key := range c.registries {
			c.post(key.client, key.id, registryGlobalRemove, name)
		}
		return true
	}
	return false
}

// Globals returns the advertised globals ordered by name.
func (c *Compositor) Globals() []Global {
	out := make([]Global, 0, len(c.globals))
	for _, g := range c.globals {
		out = append(out, Global{Name: g.name, Interface: g.iface, Version: g.version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Compositor) global(name uint32) *global {
	for _, g := range c.globals {
		if g.name == name {
			return g
		}
	}
	return nil
}

func (c *Compositor) handleDisplay(req *dispatch.Request) error {
	switch req.Spec.Opcode {
	case displaySync:
		c.post(req.Client, req.Args.NewID(0), callbackDone, c.serials.Current())

	case displayGetRegistry:
		id := req.Args.NewID(0)
		c.registries[objectKey{req.Client, id}] = struct{}{}
		for _, g := range c.globals {
			c.post(req.Client, id, registryGlobal, g.name, g.iface, g.version)
		}
	}
	return nil
}

func (c *Compositor) handleRegistry(req *dispatch.Request) error {
	name := req.Args.Uint(0)
	iface, version := req.Args.BindTarget(1)
	id := req.Args.NewID(1)

	g := c.global(name)
	switch {
	case g == nil:
		return req.Errorf(protocol.DisplayErrorInvalidObject, "invalid global %s (%d)", iface, name)
	case g.iface != iface:
		return req.Errorf(protocol.DisplayErrorInvalidObject, "invalid interface for global %d: have %s, wanted %s", name, iface, g.iface)
	case version == 0 || version > g.version:
		return req.Errorf(protocol.DisplayErrorInvalidObject, "invalid version for global %s (%d): have %d, wanted 1..%d", iface, name, version, g.version)
	}

	logger.Debugf("[COMPOSITOR] client %d bound %s v%d as %d", req.Client, iface, version, id)
	if g.bind == nil {
		return nil
	}
	return g.bind(req.Client, id, version)
}
