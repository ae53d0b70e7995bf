package protocol

// Core interface names.
const (
	WlDisplay       = "wl_display"
	WlRegistry      = "wl_registry"
	WlCallback      = "wl_callback"
	WlCompositor    = "wl_compositor"
	WlShmPool       = "wl_shm_pool"
	WlShm           = "wl_shm"
	WlBuffer        = "wl_buffer"
	WlRegion        = "wl_region"
	WlSurface       = "wl_surface"
	WlSeat          = "wl_seat"
	WlPointer       = "wl_pointer"
	WlKeyboard      = "wl_keyboard"
	WlTouch         = "wl_touch"
	WlOutput        = "wl_output"
	WlSubcompositor = "wl_subcompositor"
	WlSubsurface    = "wl_subsurface"
)

func i32(name string) ArgumentSpec { return ArgumentSpec{Name: name, Type: ArgInt} }
func u32(name string) ArgumentSpec { return ArgumentSpec{Name: name, Type: ArgUint} }
func fixed(name string) ArgumentSpec { return ArgumentSpec{Name: name, Type: ArgFixed} }
func str(name string) ArgumentSpec { return ArgumentSpec{Name: name, Type: ArgString} }
func arr(name string) ArgumentSpec { return ArgumentSpec{Name: name, Type: ArgArray} }
func fd(name string) ArgumentSpec { return ArgumentSpec{Name: name, Type: ArgFD} }

func obj(name, iface string) ArgumentSpec {
	return ArgumentSpec{Name: name, Type: ArgObject, Interface: iface}
}

func newID(name, iface string) ArgumentSpec {
	return ArgumentSpec{Name: name, Type: ArgNewID, Interface: iface}
}

func nullable(a ArgumentSpec) ArgumentSpec {
	a.AllowNull = true
	return a
}

func msg(name string, since uint32, args ...ArgumentSpec) MessageSpec {
	return MessageSpec{Name: name, Since: since, Args: args}
}

func destructor(m MessageSpec) MessageSpec {
	m.Destructor = true
	return m
}

func iface(name string, version uint32, requests []MessageSpec, events []MessageSpec) *InterfaceSpec {
	for n := range requests {
		requests[n].Opcode = uint16(n)
	}
	for n := range events {
		events[n].Opcode = uint16(n)
	}
	return &InterfaceSpec{Name: name, Version: version, Requests: requests, Events: events}
}

func rect() []ArgumentSpec {
	return []ArgumentSpec{i32("x"), i32("y"), i32("width"), i32("height")}
}

// CoreInterfaces returns fresh copies of the core Wayland interface specs
// at the versions this server implements.
func CoreInterfaces() []*InterfaceSpec {
	return []*InterfaceSpec{
		iface(WlDisplay, 1,
			[]MessageSpec{
				msg("sync", 1, newID("callback", WlCallback)),
				msg("get_registry", 1, newID("registry", WlRegistry)),
			},
			[]MessageSpec{
				msg("error", 1, obj("object_id", ""), u32("code"), str("message")),
				msg("delete_id", 1, u32("id")),
			}),

		iface(WlRegistry, 1,
			[]MessageSpec{
				msg("bind", 1, u32("name"), newID("id", "")),
			},
			[]MessageSpec{
				msg("global", 1, u32("name"), str("interface"), u32("version")),
				msg("global_remove", 1, u32("name")),
			}),

		iface(WlCallback, 1,
			nil,
			[]MessageSpec{
				destructor(msg("done", 1, u32("callback_data"))),
			}),

		iface(WlCompositor, 6,
			[]MessageSpec{
				msg("create_surface", 1, newID("id", WlSurface)),
				msg("create_region", 1, newID("id", WlRegion)),
			},
			nil),

		iface(WlShmPool, 2,
			[]MessageSpec{
				msg("create_buffer", 1, newID("id", WlBuffer), i32("offset"), i32("width"), i32("height"), i32("stride"), u32("format")),
				destructor(msg("destroy", 1)),
				msg("resize", 1, i32("size")),
			},
			nil),

		iface(WlShm, 2,
			[]MessageSpec{
				msg("create_pool", 1, newID("id", WlShmPool), fd("fd"), i32("size")),
				destructor(msg("release", 2)),
			},
			[]MessageSpec{
				msg("format", 1, u32("format")),
			}),

		iface(WlBuffer, 1,
			[]MessageSpec{
				destructor(msg("destroy", 1)),
			},
			[]MessageSpec{
				msg("release", 1),
			}),

		iface(WlRegion, 1,
			[]MessageSpec{
				destructor(msg("destroy", 1)),
				msg("add", 1, rect()...),
				msg("subtract", 1, rect()...),
			},
			nil),

		iface(WlSurface, 6,
			[]MessageSpec{
				destructor(msg("destroy", 1)),
				msg("attach", 1, nullable(obj("buffer", WlBuffer)), i32("x"), i32("y")),
				msg("damage", 1, rect()...),
				msg("frame", 1, newID("callback", WlCallback)),
				msg("set_opaque_region", 1, nullable(obj("region", WlRegion))),
				msg("set_input_region", 1, nullable(obj("region", WlRegion))),
				msg("commit", 1),
				msg("set_buffer_transform", 2, i32("transform")),
				msg("set_buffer_scale", 3, i32("scale")),
				msg("damage_buffer", 4, rect()...),
				msg("offset", 5, i32("x"), i32("y")),
			},
			[]MessageSpec{
				msg("enter", 1, obj("output", WlOutput)),
				msg("leave", 1, obj("output", WlOutput)),
				msg("preferred_buffer_scale", 6, i32("factor")),
				msg("preferred_buffer_transform", 6, u32("transform")),
			}),

		iface(WlSeat, 9,
			[]MessageSpec{
				msg("get_pointer", 1, newID("id", WlPointer)),
				msg("get_keyboard", 1, newID("id", WlKeyboard)),
				msg("get_touch", 1, newID("id", WlTouch)),
				destructor(msg("release", 5)),
			},
			[]MessageSpec{
				msg("capabilities", 1, u32("capabilities")),
				msg("name", 2, str("name")),
			}),

		iface(WlPointer, 9,
			[]MessageSpec{
				msg("set_cursor", 1, u32("serial"), nullable(obj("surface", WlSurface)), i32("hotspot_x"), i32("hotspot_y")),
				destructor(msg("release", 3)),
			},
			[]MessageSpec{
				msg("enter", 1, u32("serial"), obj("surface", WlSurface), fixed("surface_x"), fixed("surface_y")),
				msg("leave", 1, u32("serial"), obj("surface", WlSurface)),
				msg("motion", 1, u32("time"), fixed("surface_x"), fixed("surface_y")),
				msg("button", 1, u32("serial"), u32("time"), u32("button"), u32("state")),
				msg("axis", 1, u32("time"), u32("axis"), fixed("value")),
				msg("frame", 5),
				msg("axis_source", 5, u32("axis_source")),
				msg("axis_stop", 5, u32("time"), u32("axis")),
				msg("axis_discrete", 5, u32("axis"), i32("discrete")),
				msg("axis_value120", 8, u32("axis"), i32("value120")),
				msg("axis_relative_direction", 9, u32("axis"), u32("direction")),
			}),

		iface(WlKeyboard, 9,
			[]MessageSpec{
				destructor(msg("release", 3)),
			},
			[]MessageSpec{
				msg("keymap", 1, u32("format"), fd("fd"), u32("size")),
				msg("enter", 1, u32("serial"), obj("surface", WlSurface), arr("keys")),
				msg("leave", 1, u32("serial"), obj("surface", WlSurface)),
				msg("key", 1, u32("serial"), u32("time"), u32("key"), u32("state")),
				msg("modifiers", 1, u32("serial"), u32("mods_depressed"), u32("mods_latched"), u32("mods_locked"), u32("group")),
				msg("repeat_info", 4, i32("rate"), i32("delay")),
			}),

		iface(WlTouch, 9,
			[]MessageSpec{
				destructor(msg("release", 3)),
			},
			[]MessageSpec{
				msg("down", 1, u32("serial"), u32("time"), obj("surface", WlSurface), i32("id"), fixed("x"), fixed("y")),
				msg("up", 1, u32("serial"), u32("time"), i32("id")),
				msg("motion", 1, u32("time"), i32("id"), fixed("x"), fixed("y")),
				msg("frame", 1),
				msg("cancel", 1),
				msg("shape", 6, i32("id"), fixed("major"), fixed("minor")),
				msg("orientation", 6, i32("id"), fixed("orientation")),
			}),

		iface(WlOutput, 4,
			[]MessageSpec{
				destructor(msg("release", 3)),
			},
			[]MessageSpec{
				msg("geometry", 1, i32("x"), i32("y"), i32("physical_width"), i32("physical_height"), i32("subpixel"), str("make"), str("model"), i32("transform")),
				msg("mode", 1, u32("flags"), i32("width"), i32("height"), i32("refresh")),
				msg("done", 2),
				msg("scale", 2, i32("factor")),
				msg("name", 4, str("name")),
				msg("description", 4, str("description")),
			}),

		iface(WlSubcompositor, 1,
			[]MessageSpec{
				destructor(msg("destroy", 1)),
				msg("get_subsurface", 1, newID("id", WlSubsurface), obj("surface", WlSurface), obj("parent", WlSurface)),
			},
			nil),

		iface(WlSubsurface, 1,
			[]MessageSpec{
				destructor(msg("destroy", 1)),
				msg("set_position", 1, i32("x"), i32("y")),
				msg("place_above", 1, obj("sibling", WlSurface)),
				msg("place_below", 1, obj("sibling", WlSurface)),
				msg("set_sync", 1),
				msg("set_desync", 1),
			},
			nil),
	}
}

// wl_display.error codes.
const (
	DisplayErrorInvalidObject  uint32 = 0
	DisplayErrorInvalidMethod  uint32 = 1
	DisplayErrorNoMemory       uint32 = 2
	DisplayErrorImplementation uint32 = 3
)
