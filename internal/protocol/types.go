// Package protocol holds the static description of every interface the
// server speaks: request and event signatures with their opcodes and the
// version that introduced them.
package protocol

import "fmt"

// ArgType is the wire type of one argument.
type ArgType int

const (
	ArgInt ArgType = iota
	ArgUint
	ArgFixed
	ArgString
	ArgObject
	ArgNewID
	ArgArray
	ArgFD
)

var argTypeNames = map[ArgType]string{
	ArgInt:    "int",
	ArgUint:   "uint",
	ArgFixed:  "fixed",
	ArgString: "string",
	ArgObject: "object",
	ArgNewID:  "new_id",
	ArgArray:  "array",
	ArgFD:     "fd",
}

func (t ArgType) String() string {
	if name, ok := argTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ArgType(%d)", int(t))
}

// ParseArgType maps the type attribute of protocol XML to an ArgType.
func ParseArgType(s string) (ArgType, bool) {
	for t, name := range argTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// ArgumentSpec describes one argument. Interface names the expected
// interface of object and new_id arguments. A new_id without an interface
// is untyped: on the wire it expands to (interface string, version uint, id).
type ArgumentSpec struct {
	Name      string
	Type      ArgType
	Interface string
	AllowNull bool
}

// Untyped reports whether the argument is an untyped new_id.
func (a ArgumentSpec) Untyped() bool {
	return a.Type == ArgNewID && a.Interface == ""
}

// MessageSpec is the signature of a request or an event.
type MessageSpec struct {
	Name       string
	Opcode     uint16
	Since      uint32
	Args       []ArgumentSpec
	Destructor bool
}

type (
	RequestSpec = MessageSpec
	EventSpec   = MessageSpec
)

// Signature renders the argument list the way libwayland spells it,
// e.g. "?oii" for wl_surface.attach.
func (m *MessageSpec) Signature() string {
	sig := make([]byte, 0, len(m.Args)+2)
	for _, a := range m.Args {
		if a.AllowNull {
			sig = append(sig, '?')
		}
		switch a.Type {
		case ArgInt:
			sig = append(sig, 'i')
		case ArgUint:
			sig = append(sig, 'u')
		case ArgFixed:
			sig = append(sig, 'f')
		case ArgString:
			sig = append(sig, 's')
		case ArgObject:
			sig = append(sig, 'o')
		case ArgNewID:
			if a.Interface == "" {
				sig = append(sig, 's', 'u')
			}
			sig = append(sig, 'n')
		case ArgArray:
			sig = append(sig, 'a')
		case ArgFD:
			sig = append(sig, 'h')
		}
	}
	return string(sig)
}

// InterfaceSpec describes an interface at its highest supported version.
// Requests and Events are indexed by opcode.
type InterfaceSpec struct {
	Name     string
	Version  uint32
	Requests []RequestSpec
	Events   []EventSpec
}

// Request returns the request with the given opcode.
func (i *InterfaceSpec) Request(opcode uint16) (*RequestSpec, bool) {
	if int(opcode) >= len(i.Requests) {
		return nil, false
	}
	return &i.Requests[opcode], true
}

// Event returns the event with the given opcode.
func (i *InterfaceSpec) Event(opcode uint16) (*EventSpec, bool) {
	if int(opcode) >= len(i.Events) {
		return nil, false
	}
	return &i.Events[opcode], true
}

// RequestByName returns the request called name.
func (i *InterfaceSpec) RequestByName(name string) (*RequestSpec, bool) {
	for n := range i.Requests {
		if i.Requests[n].Name == name {
			return &i.Requests[n], true
		}
	}
	return nil, false
}

// EventByName returns the event called name.
func (i *InterfaceSpec) EventByName(name string) (*EventSpec, bool) {
	for n := range i.Events {
		if i.Events[n].Name == name {
			return &i.Events[n], true
		}
	}
	return nil, false
}
