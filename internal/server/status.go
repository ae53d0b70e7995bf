package server

import (
	"context"
	"sort"
	"time"

	"github.com/bnema/waycore/internal/compositor"
	"github.com/bnema/waycore/internal/registry"
)

// ClientStatus describes one connected client.
type ClientStatus struct {
	ID          registry.ClientID
	Session     string
	PID         int32
	Objects     int
	ConnectedAt time.Time
}

// Status is a snapshot of the running server.
type Status struct {
	Socket       string
	Uptime       time.Duration
	Clients      []ClientStatus
	InputDevices []string
	Compositor   compositor.Status
}

// Status collects a snapshot on the loop.
func (s *Server) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.loop.Call(ctx, func() {
		st.Socket = s.SocketPath()
		if !s.started.IsZero() {
			st.Uptime = time.Since(s.started).Truncate(time.Second)
		}

		s.mu.RLock()
		for id, c := range s.clients {
			st.Clients = append(st.Clients, ClientStatus{
				ID:          id,
				Session:     c.Session.String(),
				PID:         c.PID,
				Objects:     s.d.Registry().Count(id),
				ConnectedAt: c.ConnectedAt,
			})
		}
		s.mu.RUnlock()
		sort.Slice(st.Clients, func(i, j int) bool { return st.Clients[i].ID < st.Clients[j].ID })

		if s.evdev != nil {
			st.InputDevices = s.evdev.Devices()
		}
		st.Compositor = s.comp.Status()
	})
	return st, err
}

// StatusReport renders Status with plain types for the IPC socket.
func (s *Server) StatusReport(ctx context.Context) (map[string]interface{}, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}

	clients := make([]interface{}, 0, len(st.Clients))
	for _, c := range st.Clients {
		clients = append(clients, map[string]interface{}{
			"id":           uint64(c.ID),
			"session":      c.Session,
			"pid":          c.PID,
			"objects":      c.Objects,
			"connected_at": c.ConnectedAt.Format(time.RFC3339),
		})
	}

	cs := st.Compositor
	surfaces := make([]interface{}, 0, len(cs.Surfaces))
	for _, ss := range cs.Surfaces {
		surfaces = append(surfaces, map[string]interface{}{
			"id":     ss.ID,
			"role":   ss.Role,
			"mapped": ss.Mapped,
			"width":  ss.Width,
			"height": ss.Height,
			"parent": ss.Parent,
		})
	}
	globals := make([]interface{}, 0, len(cs.Globals))
	for _, g := range cs.Globals {
		globals = append(globals, map[string]interface{}{
			"name":      g.Name,
			"interface": g.Interface,
			"version":   g.Version,
		})
	}

	devices := make([]interface{}, 0, len(st.InputDevices))
	for _, d := range st.InputDevices {
		devices = append(devices, d)
	}

	return map[string]interface{}{
		"socket":         st.Socket,
		"input_devices":  devices,
		"uptime":         st.Uptime.String(),
		"clients":        clients,
		"surfaces":       surfaces,
		"globals":        globals,
		"views":          len(cs.Views),
		"keyboard_focus": cs.KeyboardFocus,
		"pointer_focus":  cs.PointerFocus,
		"pointer_x":      cs.PointerX,
		"pointer_y":      cs.PointerY,
		"pointers":       cs.Pointers,
		"keyboards":      cs.Keyboards,
		"touches":        cs.Touches,
	}, nil
}
