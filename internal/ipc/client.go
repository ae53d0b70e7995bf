package ipc

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bnema/waycore/internal/logger"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrNotRunning is returned when nothing listens on the status socket.
var ErrNotRunning = errors.New("waycore is not running")

// Client handles IPC communication with a running waycore instance
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return NewClientWithTimeout(socketPath, 5*time.Second)
}

// NewClientWithTimeout creates a new IPC client with custom timeout
func NewClientWithTimeout(socketPath string, timeout time.Duration) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Status queries the server and returns its report.
func (c *Client) Status() (*structpb.Struct, error) {
	msg, err := NewStatusMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to create status message: %w", err)
	}

	response, err := c.sendMessage(msg)
	if err != nil {
		return nil, err
	}

	switch MessageType(response) {
	case TypeStatus:
		return GetStatus(response)
	case TypeError:
		errMsg, _ := GetError(response)
		return nil, fmt.Errorf("server error: %s", errMsg)
	default:
		return nil, fmt.Errorf("unexpected response type: %q", MessageType(response))
	}
}

// IsRunning reports whether a server answers status queries.
func (c *Client) IsRunning() bool {
	_, err := c.Status()
	return err == nil
}

func (c *Client) sendMessage(msg *structpb.Struct) (*structpb.Struct, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		if isConnectionRefused(err) {
			return nil, ErrNotRunning
		}
		return nil, fmt.Errorf("failed to connect to waycore: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close IPC connection: %v", err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}

	if err := writeMessage(conn, msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	response, err := readMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return response, nil
}

// isConnectionRefused checks if the error is a connection refused error
func isConnectionRefused(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return netErr.Op == "dial"
	}
	return false
}
