package auth

// ActorKind discriminates the Actor sum type.
type ActorKind int

const (
	ActorUnknown ActorKind = iota
	ActorHuman
	ActorDevice
)

// Actor is the principal behind a request. Only ActorHuman carries an
// identity that may be attributed in access logs.
type Actor struct {
	kind ActorKind
	id   string
}

// HumanActor wraps a real, active user identity.
func HumanActor(userID string) Actor {
	if userID == "" {
		return UnknownActor()
	}
	return Actor{kind: ActorHuman, id: userID}
}

// DeviceActor identifies an unattended device.
func DeviceActor(deviceID string) Actor {
	if deviceID == "" {
		return UnknownActor()
	}
	return Actor{kind: ActorDevice, id: deviceID}
}

// UnknownActor is the zero principal.
func UnknownActor() Actor {
	return Actor{}
}

func (a Actor) Kind() ActorKind { return a.kind }
func (a Actor) ID() string      { return a.id }

// UserID returns the attributable user id, and false for non-human actors.
func (a Actor) UserID() (string, bool) {
	if a.kind != ActorHuman {
		return "", false
	}
	return a.id, true
}

// FirstHuman returns the first actor that identifies a real user.
func FirstHuman(actors ...Actor) Actor {
	for _, a := range actors {
		if a.kind == ActorHuman {
			return a
		}
	}
	return UnknownActor()
}
