package server

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"
)

func TestListenLocksSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayland-9")

	ln, err := Listen(path, func(c *net.UnixConn) { c.Close() })
	require.NoError(t, err)
	assert.Equal(t, path, ln.Path())
	assert.FileExists(t, path+".lock")

	_, err = Listen(path, nil)
	assert.ErrorIs(t, err, ErrSocketInUse)

	require.NoError(t, ln.Close())
	require.NoError(t, ln.Close())
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".lock")

	ln, err = Listen(path, nil)
	require.NoError(t, err, "the socket is free again after close")
	ln.Close()
}

func TestListenRemovesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayland-9")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ln, err := Listen(path, nil)
	require.NoError(t, err)
	defer ln.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.ModeSocket, info.Mode().Type())
}

func TestListenerServe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayland-9")
	accepted := make(chan *net.UnixConn, 1)
	ln, err := Listen(path, func(c *net.UnixConn) { accepted <- c })
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ln.Serve(ctx) }()

	c, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer c.Close()

	select {
	case sc := <-accepted:
		sc.Close()
	case <-time.After(time.Second):
		t.Fatal("connection not accepted")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestSanitizeError(t *testing.T) {
	live := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, sanitizeError(live, nil))
	})

	t.Run("plain errors pass through", func(t *testing.T) {
		err := errors.New("accept failed")
		assert.Same(t, err, sanitizeError(live, err))
	})

	t.Run("own context error is hidden", func(t *testing.T) {
		err := sanitizeError(live, context.Canceled)
		require.Error(t, err)
		assert.NotErrorIs(t, err, context.Canceled)
		assert.Equal(t, "context canceled", err.Error())
	})

	t.Run("supervisor shutdown", func(t *testing.T) {
		assert.ErrorIs(t, sanitizeError(cancelled, errors.New("late")), context.Canceled)
	})

	t.Run("keeps restart markers", func(t *testing.T) {
		err := sanitizeError(live, errors.Join(context.DeadlineExceeded, suture.ErrDoNotRestart))
		assert.ErrorIs(t, err, suture.ErrDoNotRestart)
		assert.NotErrorIs(t, err, context.DeadlineExceeded)
	})
}
