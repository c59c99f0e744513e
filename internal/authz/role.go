package authz

import (
	"fmt"
	"strings"
)

// Role is ordered observer < user < support < ops_admin < admin. The order is
// used only for administrative overrides (ownership checks); endpoint access
// is decided by explicit allow-lists, never by rank, because capabilities are
// not strictly monotonic (observer sees anonymized-everything, user sees only
// its own rows).
type Role int

const (
	RoleObserver Role = iota
	RoleUser
	RoleSupport
	RoleOpsAdmin
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleObserver: "observer",
	RoleUser:     "user",
	RoleSupport:  "support",
	RoleOpsAdmin: "ops_admin",
	RoleAdmin:    "admin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

func ParseRole(value string) (Role, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for role, name := range roleNames {
		if name == v {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", value)
}

// Identity is an already-authenticated requester. Authentication happens
// upstream; this layer only consumes its result.
type Identity struct {
	UserID string
	Role   Role
}
