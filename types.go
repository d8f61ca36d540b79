package portal

import "fmt"

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CredentialStore persists the access/refresh token pair. Implementations
// treat the pair as a unit: Save replaces both tokens, Clear removes both,
// and a reader can never observe one token without the other.
type CredentialStore interface {
	Load() (CredentialPair, bool, error)
	Save(pair CredentialPair) error
	Clear() error
}

// SessionState tracks where the session store is in its lifecycle.
type SessionState string

const (
	// StateBootstrapping is entered once at process start, while a stored
	// credential (if any) is being validated against the backend.
	StateBootstrapping SessionState = "bootstrapping"
	// StateAnonymous means no identity is present.
	StateAnonymous SessionState = "anonymous"
	// StateAuthenticated means an identity and a credential pair are present.
	StateAuthenticated SessionState = "authenticated"
)

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] PORTAL "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] PORTAL "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] PORTAL "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] PORTAL "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
