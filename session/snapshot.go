package session

import "github.com/sevenitynet/reliefboard/model"

// Status is the normalized outcome of a session operation. Operations never return raw
// transport errors to their callers; they collapse every failure into StatusError.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Operation names a session lifecycle transition, as reported to an Observer.
type Operation string

const (
	OpInitialize Operation = "initialize"
	OpLogIn      Operation = "login"
	OpSignUp     Operation = "signup"
	OpLogOut     Operation = "logout"
	OpRefresh    Operation = "refresh"
)

// Observer receives the outcome of every session operation. It may be called with the
// store's lock held and must not call back into the Store.
type Observer func(op Operation, status Status)

// Snapshot is an immutable copy of a session's state at one instant.
//
// Profile may be nil while Token is set: the profile fetch is still in flight, or it
// failed and the store has not cleared the token yet.
type Snapshot struct {
	Token   string
	UserID  model.ID
	Profile *model.Profile
}

// Authenticated reports whether a token is present. The token is the single source of
// truth for authentication.
func (s Snapshot) Authenticated() bool {
	return s.Token != ""
}

// Role returns the profile's role, or RoleUnknown when no profile is resolved.
func (s Snapshot) Role() model.Role {
	if s.Profile == nil {
		return model.RoleUnknown
	}
	return s.Profile.Role
}
