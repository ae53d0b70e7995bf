package surface

import "fmt"

// Role decides which protocol owns a surface's semantics.
type Role int

const (
	RoleNone Role = iota
	RoleCursor
	RoleToplevel
	RolePopup
	RoleLayer
	RoleSubsurface
	RoleDragIcon
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleCursor:
		return "cursor"
	case RoleToplevel:
		return "toplevel"
	case RolePopup:
		return "popup"
	case RoleLayer:
		return "layer"
	case RoleSubsurface:
		return "subsurface"
	case RoleDragIcon:
		return "drag_icon"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// SetRole assigns a role once. Assigning the current role again succeeds;
// any other role is rejected with ErrRoleConflict.
func (s *Surface) SetRole(role Role) error {
	if role == RoleNone {
		return fmt.Errorf("%w: cannot assign the empty role", ErrRoleConflict)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.role {
	case RoleNone:
		s.role = role
		return nil
	case role:
		return nil
	default:
		return fmt.Errorf("%w: surface %d has role %s, cannot become %s", ErrRoleConflict, s.id.Object, s.role, role)
	}
}

// Role returns the assigned role.
func (s *Surface) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}
