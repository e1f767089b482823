package session

// AuthState is one of Loading, Unauthenticated or Authenticated.
type AuthState interface {
	authState()
}

// Loading is the state before the first auth check settles.
type Loading struct{}

// Unauthenticated means there is no local session.
type Unauthenticated struct{}

// Authenticated carries the local session. SessionID partitions cached data
// and is unrelated to any server token.
type Authenticated struct {
	SessionID string
	Email     string
	AvatarURL string
}

func (Loading) authState()         {}
func (Unauthenticated) authState() {}
func (Authenticated) authState()   {}

// StateName returns a short lowercase name for s.
func StateName(s AuthState) string {
	switch s.(type) {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}
