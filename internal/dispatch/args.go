package dispatch

import (
	"github.com/bnema/waycore/internal/protocol"
	"github.com/bnema/waycore/internal/wire"
	"golang.org/x/sys/unix"
)

// Arg is one decoded request argument.
type Arg struct {
	Type protocol.ArgType
	Null bool

	word uint32
	str  string
	arr  []byte
	fd   int

	// Set for untyped new_id arguments only.
	Interface string
	Version   uint32
}

// Args are the decoded arguments of a request in declaration order.
// Accessors return zero values for out of range indexes.
type Args []Arg

func (a Args) at(i int) Arg {
	if i < 0 || i >= len(a) {
		return Arg{fd: -1}
	}
	return a[i]
}

func (a Args) Int(i int) int32 { return int32(a.at(i).word) }
func (a Args) Uint(i int) uint32 { return a.at(i).word }
func (a Args) Fixed(i int) wire.Fixed { return wire.Fixed(int32(a.at(i).word)) }
func (a Args) Object(i int) uint32 { return a.at(i).word }
func (a Args) NewID(i int) uint32 { return a.at(i).word }
func (a Args) String(i int) string { return a.at(i).str }
func (a Args) Array(i int) []byte { return a.at(i).arr }
func (a Args) FD(i int) int { return a.at(i).fd }
func (a Args) IsNull(i int) bool { return a.at(i).Null }

// BindTarget returns the interface and version of an untyped new_id.
func (a Args) BindTarget(i int) (string, uint32) {
	arg := a.at(i)
	return arg.Interface, arg.Version
}

// decodeArgs reads every argument of spec from the payload. Codec errors
// are returned unwrapped. FDs are taken from fds in order.
func decodeArgs(spec *protocol.MessageSpec, payload []byte, fds *wire.FDQueue) (Args, error) {
	r := wire.NewArgReader(payload)
	args := make(Args, 0, len(spec.Args))

	for _, as := range spec.Args {
		arg := Arg{Type: as.Type, fd: -1}
		var err error

		switch as.Type {
		case protocol.ArgInt:
			var v int32
			v, err = r.Int()
			arg.word = uint32(v)
		case protocol.ArgUint:
			arg.word, err = r.Uint()
		case protocol.ArgFixed:
			var v wire.Fixed
			v, err = r.Fixed()
			arg.word = uint32(v)
		case protocol.ArgString:
			arg.str, arg.Null, err = r.NullableString()
		case protocol.ArgObject:
			arg.word, err = r.Object()
			arg.Null = err == nil && arg.word == 0
		case protocol.ArgNewID:
			if as.Untyped() {
				arg.Interface, err = r.String()
				if err == nil {
					arg.Version, err = r.Uint()
				}
			}
			if err == nil {
				arg.word, err = r.NewID()
			}
		case protocol.ArgArray:
			arg.arr, err = r.Array()
		case protocol.ArgFD:
			arg.fd, err = fds.Pop()
		}
		if err != nil {
			args.closeFDs()
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func (a Args) closeFDs() {
	for _, arg := range a {
		if arg.Type == protocol.ArgFD && arg.fd >= 0 {
			_ = unix.Close(arg.fd)
		}
	}
}
