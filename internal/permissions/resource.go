package permissions

import "github.com/charlesng35/lockgate/internal/models"

// ResourceKind names the entity type being authorized.
type ResourceKind string

const (
	KindLock          ResourceKind = "lock"
	KindPin           ResourceKind = "pin"
	KindDevice        ResourceKind = "device"
	KindAccessLog     ResourceKind = "access_log"
	KindNetworkConfig ResourceKind = "network_config"
	KindRoleBinding   ResourceKind = "role_binding"
)

// Valid reports whether k is one of the known kinds.
func (k ResourceKind) Valid() bool {
	switch k {
	case KindLock, KindPin, KindDevice, KindAccessLog, KindNetworkConfig, KindRoleBinding:
		return true
	default:
		return false
	}
}

// Resource is anything that resolves to the lock that scopes it.
type Resource interface {
	LockRef() *models.Lock
	Kind() ResourceKind
}

// LockResource authorizes against the lock entity itself.
type LockResource struct {
	Lock *models.Lock
}

func (r LockResource) LockRef() *models.Lock { return r.Lock }
func (r LockResource) Kind() ResourceKind    { return KindLock }

// ScopedResource authorizes an entity owned by a lock (pin, device, log...).
// It never names the lock itself; such a value is malformed and always denied.
type ScopedResource struct {
	Lock         *models.Lock
	ResourceKind ResourceKind
}

func (r ScopedResource) LockRef() *models.Lock { return r.Lock }
func (r ScopedResource) Kind() ResourceKind    { return r.ResourceKind }

// wellFormed reports whether the resource's kind matches its shape.
func wellFormed(r Resource) bool {
	kind := r.Kind()
	if _, ok := r.(LockResource); ok {
		return kind == KindLock
	}
	return kind.Valid() && kind != KindLock
}

// Scoped is a convenience constructor for ScopedResource.
func Scoped(lock *models.Lock, kind ResourceKind) ScopedResource {
	return ScopedResource{Lock: lock, ResourceKind: kind}
}
