package protocol

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrDuplicateInterface = errors.New("interface already registered")
	ErrSealed             = errors.New("protocol store is sealed")
	ErrInvalidSpec        = errors.New("invalid interface spec")
)

// Store maps interface names to their specs. Registration happens during
// startup; after Seal the store is read-only.
type Store struct {
	mu         sync.RWMutex
	interfaces map[string]*InterfaceSpec
	sealed     bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{interfaces: make(map[string]*InterfaceSpec)}
}

// NewCoreStore returns a store preloaded with the core Wayland interfaces.
func NewCoreStore() (*Store, error) {
	s := NewStore()
	for _, spec := range CoreInterfaces() {
		if err := s.Register(spec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register adds an interface. Missing since-versions default to 1.
func (s *Store) Register(spec *InterfaceSpec) error {
	if err := normalize(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrSealed, spec.Name)
	}
	if _, exists := s.interfaces[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateInterface, spec.Name)
	}
	s.interfaces[spec.Name] = spec
	return nil
}

func normalize(spec *InterfaceSpec) error {
	if spec == nil || spec.Name == "" {
		return fmt.Errorf("%w: interface without a name", ErrInvalidSpec)
	}
	if spec.Version == 0 {
		return fmt.Errorf("%w: %s has version 0", ErrInvalidSpec, spec.Name)
	}
	for _, msgs := range [][]MessageSpec{spec.Requests, spec.Events} {
		for n := range msgs {
			m := &msgs[n]
			if int(m.Opcode) != n {
				return fmt.Errorf("%w: %s.%s has opcode %d at index %d", ErrInvalidSpec, spec.Name, m.Name, m.Opcode, n)
			}
			if m.Since == 0 {
				m.Since = 1
			}
			if m.Since > spec.Version {
				return fmt.Errorf("%w: %s.%s since %d exceeds interface version %d", ErrInvalidSpec, spec.Name, m.Name, m.Since, spec.Version)
			}
		}
	}
	return nil
}

// Seal freezes the store.
func (s *Store) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (s *Store) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}

// Interface returns the spec registered under name.
func (s *Store) Interface(name string) (*InterfaceSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.interfaces[name]
	return spec, ok
}

// RequestSpec looks up a request signature.
func (s *Store) RequestSpec(iface string, opcode uint16) (*RequestSpec, bool) {
	spec, ok := s.Interface(iface)
	if !ok {
		return nil, false
	}
	return spec.Request(opcode)
}

// EventSpec looks up an event signature.
func (s *Store) EventSpec(iface string, opcode uint16) (*EventSpec, bool) {
	spec, ok := s.Interface(iface)
	if !ok {
		return nil, false
	}
	return spec.Event(opcode)
}

// Interfaces returns every registered interface sorted by name.
func (s *Store) Interfaces() []*InterfaceSpec {
	s.mu.RLock()
	out := make([]*InterfaceSpec, 0, len(s.interfaces))
	for _, spec := range s.interfaces {
		out = append(out, spec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
