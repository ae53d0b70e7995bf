// Package server runs the compositor core: the reactor loop, the Wayland
// socket, per-client connections and the supervised services around them.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/waycore/internal/compositor"
	"github.com/bnema/waycore/internal/config"
	"github.com/bnema/waycore/internal/dispatch"
	"github.com/bnema/waycore/internal/input"
	"github.com/bnema/waycore/internal/ipc"
	"github.com/bnema/waycore/internal/logger"
	"github.com/bnema/waycore/internal/protocol"
	"github.com/bnema/waycore/internal/registry"
	"github.com/bnema/waycore/internal/wire"
	"github.com/google/uuid"
)

const loopQueueSize = 1024

// Server represents the running compositor core
type Server struct {
	cfg     *config.Config
	loop    *Loop
	serials *input.SerialCounter
	d       *dispatch.Dispatcher
	comp    *compositor.Compositor
	started time.Time

	listener *Listener
	evdev    *input.EvdevSource
	clock    *compositor.FrameClock

	mu      sync.RWMutex
	clients map[registry.ClientID]*Client
	nextID  atomic.Uint64

	// Touched only on the loop
	reloadTimer input.Timer
	keyboard    config.KeyboardConfig
}

var _ dispatch.Transport = (*Server)(nil)

// New builds the protocol stack from cfg. Nothing is bound until Serve.
func New(cfg *config.Config) (*Server, error) {
	store, err := protocol.NewCoreStore()
	if err != nil {
		return nil, fmt.Errorf("failed to load core protocol: %w", err)
	}

	rc, err := routerConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		loop:     NewLoop(loopQueueSize),
		serials:  &input.SerialCounter{},
		clients:  make(map[registry.ClientID]*Client),
		keyboard: cfg.Keyboard,
	}
	s.d = dispatch.New(store, registry.New(), s)

	for _, dir := range cfg.Protocols.ExtraDirs {
		specs, err := protocol.LoadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load protocols from %s: %w", dir, err)
		}
		if err := s.d.RegisterExtension(specs, nil); err != nil {
			return nil, err
		}
		logger.Infof("Loaded %d protocol interfaces from %s", len(specs), dir)
	}

	s.comp = compositor.New(s.d, s.serials, compositor.Options{
		Output:    outputConfig(cfg.Output),
		Scheduler: s.loop,
		Input:     *rc,
	})
	s.loop.OnIdle(s.flushAll)
	return s, nil
}

// Compositor returns the protocol handlers.
func (s *Server) Compositor() *compositor.Compositor {
	return s.comp
}

// Loop returns the reactor loop.
func (s *Server) Loop() *Loop {
	return s.loop
}

func outputConfig(o config.OutputConfig) compositor.Output {
	return compositor.Output{
		Name:        o.Name,
		Description: fmt.Sprintf("waycore output %dx%d", o.Width, o.Height),
		Make:        "waycore",
		Model:       "virtual",
		Width:       int32(o.Width),
		Height:      int32(o.Height),
		RefreshMHz:  int32(o.RefreshMHz),
		Scale:       int32(o.Scale),
	}
}

// routerConfig builds the input settings. The keymap comes from
// keymap_file when set, otherwise from the built-in layout table.
func routerConfig(cfg *config.Config) (*input.RouterConfig, error) {
	profile, err := input.ParseAccelProfile(cfg.Pointer.AccelProfile)
	if err != nil {
		return nil, err
	}

	var km *input.Keymap
	if cfg.Keyboard.KeymapFile != "" {
		km, err = input.LoadKeymap(cfg.Keyboard.Layout, cfg.Keyboard.KeymapFile)
	} else {
		km, err = input.NewKeymap(cfg.Keyboard.Layout)
	}
	if err != nil {
		return nil, err
	}

	return &input.RouterConfig{
		RepeatRate:  int32(cfg.Keyboard.RepeatRate),
		RepeatDelay: int32(cfg.Keyboard.RepeatDelay),
		Accel:       input.NewAccelerator(profile, cfg.Pointer.Sensitivity),
		Keymap:      km,
	}, nil
}

// Serve binds the socket and runs every service until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	path, err := s.cfg.SocketPath()
	if err != nil {
		return err
	}
	ln, err := Listen(path, s.accept)
	if err != nil {
		return err
	}
	s.listener = ln
	s.started = time.Now()
	defer func() {
		if err := ln.Close(); err != nil {
			logger.Debugf("Closing listener: %v", err)
		}
	}()

	sup := newSupervisor("waycore")
	addService(sup, s.loop)
	addService(sup, ln)

	if devices := s.cfg.Input.Devices; len(devices) > 0 || s.cfg.Input.Autodetect {
		s.evdev = input.NewEvdevSource(devices, s.comp.Router(), s.postFunc)
		addService(sup, s.evdev)
	}

	if s.cfg.IPC.Enabled {
		ipcPath, err := s.cfg.IPCSocketPath()
		if err != nil {
			logger.Warnf("IPC status socket disabled: %v", err)
		} else {
			addService(sup, ipc.NewSocketServer(ipcPath, s))
		}
	}

	s.postFunc(func() {
		s.clock = s.comp.StartFrameClock(s.loop)
	})
	s.watchConfig()

	err = sup.Serve(ctx)
	s.shutdown()
	return err
}

// SocketPath returns the bound Wayland socket, or "" before Serve.
func (s *Server) SocketPath() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Path()
}

func (s *Server) postFunc(fn func()) {
	if err := s.loop.Post(fn); err != nil {
		logger.Debugf("[REACTOR] dropped task: %v", err)
	}
}

// post queues a dispatcher event on the loop.
func (s *Server) post(ev dispatch.Event) error {
	return s.loop.Post(func() { s.handleEvent(ev) })
}

func (s *Server) handleEvent(ev dispatch.Event) {
	if err := s.d.HandleEvent(ev); err != nil {
		logger.Debugf("[DISPATCH] %v", err)
	}
	if e, ok := ev.(dispatch.ClientDisconnected); ok {
		s.removeClient(e.Client)
		if e.Err != nil {
			logger.Infof("Client %d disconnected: %v", e.Client, e.Err)
		} else {
			logger.Infof("Client %d disconnected", e.Client)
		}
	}
}

// accept sets up a new connection. It runs on the listener goroutine.
func (s *Server) accept(uc *net.UnixConn) {
	s.mu.RLock()
	count := len(s.clients)
	s.mu.RUnlock()
	if limit := s.cfg.Server.MaxClients; limit > 0 && count >= limit {
		logger.Warnf("Rejecting client: %d of %d clients connected", count, limit)
		uc.Close()
		return
	}

	wc := wire.NewConn(uc)
	id := registry.ClientID(s.nextID.Add(1))
	session := uuid.New()
	c := &Client{
		ID:          id,
		Session:     session,
		ConnectedAt: time.Now(),
		conn:        wc,
		log:         logger.With("client", id, "session", session.String()[:8]),
	}
	if pid, err := wc.PeerPID(); err == nil {
		c.PID = pid
	}
	delay := time.Duration(s.cfg.Server.FlushDelayMs) * time.Millisecond
	c.writer = NewBufferedWriter(wc, delay, 0, func(err error) {
		c.log.Warn("Write failed, dropping client", "err", err)
		_ = wc.Close()
	})

	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()

	if err := s.post(dispatch.NewClient{Client: id}); err != nil {
		s.removeClient(id)
		return
	}
	c.log.Info("Client connected", "pid", c.PID)
	go c.readLoop(s.post)
}

func (s *Server) client(id registry.ClientID) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[id]
}

func (s *Server) removeClient(id registry.ClientID) {
	s.mu.Lock()
	c, ok := s.clients[id]
	delete(s.clients, id)
	s.mu.Unlock()
	if ok {
		c.close()
	}
}

// Send buffers an event frame for a client. The frame's descriptors are
// owned by the writer from here on.
func (s *Server) Send(id registry.ClientID, frame wire.Frame) error {
	c := s.client(id)
	if c == nil {
		closeAll(frame.FDs)
		return fmt.Errorf("%w: %d", registry.ErrUnknownClient, id)
	}
	return c.writer.WriteFrame(frame)
}

// Close flushes what is buffered for a client and closes its socket.
func (s *Server) Close(id registry.ClientID) {
	if c := s.client(id); c != nil {
		c.close()
	}
}

func (s *Server) flushAll() {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if err := c.writer.Flush(); err != nil {
			c.log.Warn("Flush failed, dropping client", "err", err)
			_ = c.conn.Close()
		}
	}
}

func (s *Server) shutdown() {
	s.loop.Close()
	if s.clock != nil {
		s.clock.Stop()
	}

	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[registry.ClientID]*Client)
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	logger.Info("Server stopped")
}
