package wire

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// MaxFDsPerMessage bounds the descriptors carried by one sendmsg call.
const MaxFDsPerMessage = 28

// Conn is a Wayland stream socket that carries file descriptors as
// SCM_RIGHTS ancillary data next to the byte stream.
type Conn struct {
	c   *net.UnixConn
	oob []byte
}

// NewConn wraps an accepted unix connection.
func NewConn(c *net.UnixConn) *Conn {
	return &Conn{
		c:   c,
		oob: make([]byte, unix.CmsgSpace(MaxFDsPerMessage*4)),
	}
}

// ReadMsg reads stream bytes into buf and returns any received descriptors.
func (c *Conn) ReadMsg(buf []byte) (int, []int, error) {
	n, oobn, _, _, err := c.c.ReadMsgUnix(buf, c.oob)
	if err != nil {
		return n, nil, err
	}
	if oobn == 0 {
		return n, nil, nil
	}

	msgs, err := unix.ParseSocketControlMessage(c.oob[:oobn])
	if err != nil {
		return n, nil, fmt.Errorf("failed to parse control message: %w", err)
	}

	var fds []int
	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			for _, fd := range fds {
				_ = unix.Close(fd)
			}
			return n, nil, fmt.Errorf("failed to parse unix rights: %w", err)
		}
		fds = append(fds, rights...)
	}
	return n, fds, nil
}

// WriteMsg writes data with fds attached to its first byte.
func (c *Conn) WriteMsg(data []byte, fds []int) error {
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	n, _, err := c.c.WriteMsgUnix(data, oob, nil)
	if err != nil {
		return err
	}
	for n < len(data) {
		m, err := c.c.Write(data[n:])
		if err != nil {
			return err
		}
		n += m
	}
	return nil
}

// PeerPID returns the process id of the connected client.
func (c *Conn) PeerPID() (int32, error) {
	raw, err := c.c.SyscallConn()
	if err != nil {
		return 0, err
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, err
	}
	if credErr != nil {
		return 0, credErr
	}
	return cred.Pid, nil
}

// Close closes the socket.
func (c *Conn) Close() error {
	return c.c.Close()
}
