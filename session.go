package portal

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
)

const (
	profilePath        = "/api/profile/"
	profileUpdatePath  = "/api/profile/update/"
	changePasswordPath = "/api/profile/change-password/"
	registerPath       = "/api/register/"
)

// SessionStore is the single source of truth for "who is logged in". It owns
// the Identity and, together with the Client, the stored credential pair.
//
// Lifecycle: bootstrapping -> {anonymous, authenticated}. Bootstrapping is
// entered once at construction and settles exactly once, either through
// Bootstrap or through the first Logout. Role changes are attribute mutations
// within the authenticated state, not separate transitions.
type SessionStore struct {
	client *Client
	creds  CredentialStore
	logger Logger

	mu       sync.RWMutex
	identity *Identity

	settleOnce sync.Once
	ready      chan struct{}
}

// NewSessionStore wires a store to the given client. The store subscribes to
// the client's credential-invalidation signal so that Identity is cleared by
// exactly one writer when the refresh protocol fails terminally.
func NewSessionStore(client *Client) *SessionStore {
	s := &SessionStore{
		client: client,
		creds:  client.Credentials(),
		logger: defLogger{},
		ready:  make(chan struct{}),
	}

	client.OnCredentialsInvalidated(func() {
		s.clearIdentity()
	})

	return s
}

func (s *SessionStore) WithLogger(logger Logger) *SessionStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Bootstrap performs the initial session check. If a credential pair is in
// durable storage it attempts a profile fetch before settling; otherwise the
// store settles directly into anonymous. Safe to call once per process; later
// calls are no-ops.
func (s *SessionStore) Bootstrap(ctx context.Context) {
	s.settleOnce.Do(func() {
		defer close(s.ready)

		pair, ok, err := s.creds.Load()
		if err != nil {
			s.logger.Error("bootstrap failed to read credential store: %v", err)
			return
		}

		if !ok || pair.Access == "" {
			s.logger.Debug("bootstrap: no stored credentials")
			return
		}

		if exp, known := pair.AccessExpiry(); known {
			s.logger.Debug("bootstrap: stored access token expires %s", exp)
		}

		if err := s.GetProfile(ctx); err != nil {
			s.logger.Info("bootstrap profile fetch failed: %v", err)
		}
	})
}

// Ready is closed once the bootstrap check has settled.
func (s *SessionStore) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until the store has settled or the context expires.
func (s *SessionStore) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.CategoryOperation, "session bootstrap did not settle")
	}
}

// State reports the current lifecycle state.
func (s *SessionStore) State() SessionState {
	select {
	case <-s.ready:
	default:
		return StateBootstrapping
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity != nil {
		return StateAuthenticated
	}
	return StateAnonymous
}

// Identity returns a copy of the current identity, if any. Unauthenticated
// state is "no identity", never a partial placeholder.
func (s *SessionStore) Identity() (*Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil, false
	}
	return s.identity.clone(), true
}

// Login exchanges the email/password pair for tokens, stores both durably,
// then fetches the profile. A rejected pair surfaces as ErrInvalidCredentials
// with stored tokens left untouched; there is no retry.
func (s *SessionStore) Login(ctx context.Context, email, password string) error {
	payload := LoginPayload{Email: email, Password: password}
	if err := payload.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid login payload").
			WithCode(errors.CodeBadRequest)
	}

	var tokens CredentialPair
	if err := s.client.Post(ctx, tokenPath, payload, &tokens); err != nil {
		if IsCredentialInvalid(err) {
			s.logger.Info("login rejected for %s", email)
			return ErrInvalidCredentials
		}
		return err
	}

	if !tokens.Complete() {
		return errors.New("token endpoint returned incomplete pair", errors.CategoryInternal)
	}

	if err := s.creds.Save(tokens); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to store credentials")
	}

	return s.GetProfile(ctx)
}

// Register creates an account server-side. It does not authenticate the
// caller; duplicate emails and malformed fields surface as field errors.
func (s *SessionStore) Register(ctx context.Context, payload RegisterPayload) error {
	if err := payload.Validate(); err != nil {
		return NewValidationError(localFieldErrors(err))
	}

	return s.client.Post(ctx, registerPath, payload, nil)
}

// GetProfile fetches the current identity with the stored access token.
//
// Failure handling is deliberately asymmetric: only a credential confirmed
// invalid by the backend (401/403 surviving the refresh attempt) clears the
// pair and the identity. Network or server failures leave the previous
// identity in place, so loss of connectivity never silently logs out.
func (s *SessionStore) GetProfile(ctx context.Context) error {
	var payload identityPayload
	if err := s.client.Get(ctx, profilePath, &payload); err != nil {
		if IsCredentialInvalid(err) {
			s.logger.Info("credential confirmed invalid, clearing session")
			if clearErr := s.creds.Clear(); clearErr != nil {
				s.logger.Error("failed to clear credentials: %v", clearErr)
			}
			s.clearIdentity()
			return ErrSessionExpired
		}
		return err
	}

	identity := payload.toIdentity()

	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()

	s.logger.Debug("profile loaded for %s (%s)", identity.Email, identity.Role)
	return nil
}

// UpdateProfile patches mutable profile fields and replaces Identity with the
// server's returned representation. The backend is authoritative for derived
// fields like the school name, so the response is never merged locally.
func (s *SessionStore) UpdateProfile(ctx context.Context, patch ProfileUpdatePayload) error {
	if _, ok := s.Identity(); !ok {
		return ErrNotAuthenticated
	}

	var payload identityPayload
	if err := s.client.Patch(ctx, profileUpdatePath, patch.wire(), &payload); err != nil {
		return err
	}

	s.mu.Lock()
	s.identity = payload.toIdentity()
	s.mu.Unlock()

	return nil
}

// ChangePassword requires all three fields; the server re-validates the old
// password and the new/confirm equality independent of this client check.
func (s *SessionStore) ChangePassword(ctx context.Context, oldPassword, newPassword, confirmPassword string) error {
	payload := ChangePasswordPayload{
		OldPassword:     oldPassword,
		NewPassword:     newPassword,
		ConfirmPassword: confirmPassword,
	}
	if err := payload.Validate(); err != nil {
		return NewValidationError(localFieldErrors(err))
	}

	return s.client.Post(ctx, changePasswordPath, payload, nil)
}

// Logout synchronously destroys the credential pair and the identity. There
// is no server-side session to invalidate beyond token expiry, so no backend
// call is made. Calling it while already anonymous is a no-op.
func (s *SessionStore) Logout() {
	if err := s.creds.Clear(); err != nil {
		s.logger.Error("failed to clear credentials on logout: %v", err)
	}
	s.clearIdentity()

	// Mirrors the bootstrap contract: a logout before the initial check
	// settles the store into anonymous.
	s.settleOnce.Do(func() { close(s.ready) })
}

func (s *SessionStore) clearIdentity() {
	s.mu.Lock()
	s.identity = nil
	s.mu.Unlock()
}

// currentUserID returns the logged-in user's backend id, when known.
func (s *SessionStore) currentUserID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil || s.identity.ID == 0 {
		return 0, false
	}
	return s.identity.ID, true
}
