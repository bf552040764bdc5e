package models

// Status is the lifecycle stage of a session. It only moves forward.
type Status int

const (
	StatusUninitialized Status = iota
	StatusResolving
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusResolving:
		return "resolving"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Session is the resolved identity state visible to the rest of the application.
// A nil User means nobody is logged in.
type Session struct {
	User   *User
	Status Status

	// Stale is set when User came from the local snapshot and the server has
	// not confirmed it, either because revalidation is still in flight or
	// because the server could not be reached.
	Stale bool
}

// Authenticated returns true if the session is resolved to a user.
func (s Session) Authenticated() bool {
	return s.Status == StatusResolved && s.User != nil
}

// Clone returns a copy that shares nothing with s.
func (s Session) Clone() Session {
	s.User = s.User.Clone()
	return s
}

// CredentialBundle is the token pair plus the last known user, persisted together.
type CredentialBundle struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
	User         *User  `json:"user"`
}

// Empty returns true if the bundle holds no access token.
func (b CredentialBundle) Empty() bool {
	return b.AccessToken == ""
}
