package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bnema/waycore/internal/logger"
	"github.com/thejerf/suture/v4"
	"golang.org/x/sys/unix"
)

// ErrSocketInUse means another compositor holds the socket lock.
var ErrSocketInUse = errors.New("wayland socket is in use")

// Listener owns the Wayland socket and its lock file.
type Listener struct {
	path     string
	lockPath string
	lock     *os.File
	ln       *net.UnixListener
	accept   func(*net.UnixConn)

	mu     sync.Mutex
	closed bool
}

// Listen locks path.lock, removes a stale socket left by a dead server
// and binds path. accept is called from the accept goroutine for every new
// connection.
func Listen(path string, accept func(*net.UnixConn)) (*Listener, error) {
	lockPath := path + ".lock"
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o660)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		return nil, fmt.Errorf("%w: %s", ErrSocketInUse, path)
	}

	// Holding the lock means any socket file left here is stale
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		lock.Close()
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		lock.Close()
		return nil, fmt.Errorf("failed to create socket listener: %w", err)
	}
	ln.SetUnlinkOnClose(true)

	return &Listener{
		path:     path,
		lockPath: lockPath,
		lock:     lock,
		ln:       ln,
		accept:   accept,
	}, nil
}

func (l *Listener) String() string {
	return "wayland-listener"
}

// Path returns the socket path.
func (l *Listener) Path() string {
	return l.path
}

// Serve accepts connections until ctx is cancelled.
func (l *Listener) Serve(ctx context.Context) error {
	if err := l.ln.SetDeadline(time.Time{}); err != nil {
		return suture.ErrDoNotRestart
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.ln.SetDeadline(time.Now())
		case <-stop:
		}
	}()

	logger.Infof("Listening for Wayland clients on %s", l.path)
	for {
		uc, err := l.ln.AcceptUnix()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return suture.ErrDoNotRestart
			}
			logger.Errorf("Failed to accept connection: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		l.accept(uc)
	}
}

// Close removes the socket and releases the lock.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	err := l.ln.Close()
	_ = os.Remove(l.lockPath)
	_ = unix.Flock(int(l.lock.Fd()), unix.LOCK_UN)
	l.lock.Close()
	return err
}
