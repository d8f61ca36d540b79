package portal

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialPair is the access/refresh token pair issued by the backend's
// token endpoint. Both tokens are created together on login and destroyed
// together on logout or refresh failure; only the access token is replaced
// on a successful silent refresh.
type CredentialPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// IsZero reports whether the pair holds no tokens.
func (p CredentialPair) IsZero() bool {
	return p.Access == "" && p.Refresh == ""
}

// Complete reports whether both tokens are present.
func (p CredentialPair) Complete() bool {
	return p.Access != "" && p.Refresh != ""
}

// WithAccess returns a copy of the pair carrying a freshly minted access
// token. The refresh token is kept as-is.
func (p CredentialPair) WithAccess(access string) CredentialPair {
	p.Access = access
	return p
}

// AccessExpiry reads the exp claim out of the access token without verifying
// the signature. The client treats tokens as opaque otherwise; expiry is only
// used for logging and for skipping obviously dead tokens.
func (p CredentialPair) AccessExpiry() (time.Time, bool) {
	if p.Access == "" {
		return time.Time{}, false
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(p.Access, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}

// MemoryCredentials is an in-process CredentialStore, used by tests and by
// callers that do not want tokens to outlive the process.
type MemoryCredentials struct {
	mu   sync.RWMutex
	pair CredentialPair
	set  bool
}

var _ CredentialStore = (*MemoryCredentials)(nil)

func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{}
}

func (m *MemoryCredentials) Load() (CredentialPair, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair, m.set, nil
}

func (m *MemoryCredentials) Save(pair CredentialPair) error {
	if !pair.Complete() {
		return ErrNoCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = pair
	m.set = true
	return nil
}

func (m *MemoryCredentials) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = CredentialPair{}
	m.set = false
	return nil
}
