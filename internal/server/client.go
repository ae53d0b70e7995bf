package server

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/bnema/waycore/internal/dispatch"
	"github.com/bnema/waycore/internal/registry"
	"github.com/bnema/waycore/internal/wire"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const readBufferSize = 4096

// conn is the socket side of one client.
type conn interface {
	msgWriter
	ReadMsg(buf []byte) (int, []int, error)
	Close() error
}

// Client is one accepted Wayland connection.
type Client struct {
	ID          registry.ClientID
	Session     uuid.UUID
	PID         int32
	ConnectedAt time.Time

	conn   conn
	writer *BufferedWriter
	log    *log.Logger
}

// readLoop decodes frames until the connection fails and hands every event
// to post. Descriptors are attached to the next complete frame.
func (c *Client) readLoop(post func(dispatch.Event) error) {
	dec := wire.NewDecoder()
	buf := make([]byte, readBufferSize)
	var fds []int

	for {
		n, got, err := c.conn.ReadMsg(buf)
		fds = append(fds, got...)
		if n > 0 {
			dec.AppendData(buf[:n])
		}

		for {
			msg, derr := dec.NextMessage()
			if derr != nil {
				closeAll(fds)
				c.log.Warn("Dropping client with malformed frame", "err", derr)
				post(dispatch.ClientDisconnected{Client: c.ID, Err: derr})
				return
			}
			if msg == nil {
				break
			}
			if perr := post(dispatch.ClientMessage{Client: c.ID, Message: msg, FDs: fds}); perr != nil {
				closeAll(fds)
				return
			}
			fds = nil
		}

		if err != nil {
			closeAll(fds)
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = nil
			}
			post(dispatch.ClientDisconnected{Client: c.ID, Err: err})
			return
		}
		if n == 0 {
			closeAll(fds)
			post(dispatch.ClientDisconnected{Client: c.ID})
			return
		}
	}
}

// close stops the writer and the socket. The read loop then reports the
// disconnect.
func (c *Client) close() {
	if err := c.writer.Close(); err != nil {
		c.log.Debug("Final flush failed", "err", err)
	}
	_ = c.conn.Close()
}
