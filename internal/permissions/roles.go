package permissions

import (
	"net/http"
	"strings"
)

// Role is the closed set of lock-scoped roles. The zero value is RoleUnknown
// and never grants anything.
type Role int

const (
	RoleUnknown Role = iota
	RoleGuest
	RoleAdmin
	RoleOwner
)

// ParseRole resolves a stored role name case-insensitively.
func ParseRole(name string) Role {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "guest":
		return RoleGuest
	case "admin":
		return RoleAdmin
	case "owner":
		return RoleOwner
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Capabilities describes what a role may do on one lock.
type Capabilities struct {
	Read               bool
	ManageSubresources bool
	ManageLock         bool
}

var capabilityTable = map[Role]Capabilities{
	RoleGuest: {Read: true},
	RoleAdmin: {Read: true, ManageSubresources: true},
	RoleOwner: {Read: true, ManageSubresources: true, ManageLock: true},
}

// CapabilitiesOf returns the capability set of r. Unknown roles get none.
func CapabilitiesOf(r Role) Capabilities {
	return capabilityTable[r]
}

// Action is the requested operation class.
type Action int

const (
	ActionRead Action = iota
	ActionWrite
)

func (a Action) String() string {
	if a == ActionRead {
		return "read"
	}
	return "write"
}

// ActionFromMethod maps safe HTTP methods to ActionRead and everything else to ActionWrite.
func ActionFromMethod(method string) Action {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ActionRead
	default:
		return ActionWrite
	}
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool {
	return d == Allow
}

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// permits applies the capability table to a resource kind and action.
func (c Capabilities) permits(kind ResourceKind, action Action) bool {
	if action == ActionRead {
		return c.Read
	}
	if kind == KindLock {
		return c.ManageLock
	}
	return c.ManageSubresources
}
