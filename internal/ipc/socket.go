package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/waycore/internal/logger"
	"google.golang.org/protobuf/types/known/structpb"
)

// statusTimeout bounds how long a status query may wait for the reactor.
const statusTimeout = 2 * time.Second

// StatusProvider produces the report returned to status queries.
type StatusProvider interface {
	StatusReport(ctx context.Context) (map[string]interface{}, error)
}

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	provider   StatusProvider
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer creates a socket server bound to socketPath on Start.
func NewSocketServer(socketPath string, provider StatusProvider) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		provider:   provider,
	}
}

func (s *SocketServer) String() string {
	return "ipc-status"
}

// SocketPath returns the socket path.
func (s *SocketServer) SocketPath() string {
	return s.socketPath
}

// Serve runs the server until ctx is cancelled.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Set socket permissions (user only)
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop stops the socket server
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	// Clean up socket file
	os.RemoveAll(s.socketPath)

	logger.Info("IPC socket server stopped")
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Errorf("Failed to accept connection: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the read below when the server stops
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Now())
		case <-done:
		}
	}()

	logger.Debug("New IPC connection established")

	for {
		msg, err := readMessage(conn)
		if err != nil {
			logger.Debugf("Connection closed or read error: %v", err)
			return
		}

		response := s.handleMessage(ctx, msg)
		if err := writeMessage(conn, response); err != nil {
			logger.Errorf("Failed to send response: %v", err)
			return
		}
	}
}

// handleMessage processes a single message and returns a response
func (s *SocketServer) handleMessage(ctx context.Context, msg *structpb.Struct) *structpb.Struct {
	switch t := MessageType(msg); t {
	case TypeStatus:
		qctx, cancel := context.WithTimeout(ctx, statusTimeout)
		defer cancel()

		report, err := s.provider.StatusReport(qctx)
		if err != nil {
			return NewErrorMessage(err.Error())
		}
		response, err := NewStatusResponseMessage(report)
		if err != nil {
			return NewErrorMessage(fmt.Sprintf("failed to encode status: %v", err))
		}
		return response

	default:
		return NewErrorMessage(fmt.Sprintf("Unknown message type: %q", t))
	}
}
