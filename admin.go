package portal

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const adminUsersPath = "/api/admin/users/"

// SearchUsers lists accounts, optionally filtered by the backend's search
// param. Thin authenticated passthrough; the backend enforces the admin role.
func (s *SessionStore) SearchUsers(ctx context.Context, search string) ([]Identity, error) {
	query := url.Values{}
	if search = strings.TrimSpace(search); search != "" {
		query.Set("search", search)
	}

	var payload []identityPayload
	if err := s.client.GetQuery(ctx, adminUsersPath, query, &payload); err != nil {
		return nil, err
	}

	users := make([]Identity, 0, len(payload))
	for _, p := range payload {
		users = append(users, *p.toIdentity())
	}
	return users, nil
}

// CreateUser creates an account with admin-chosen role and school.
func (s *SessionStore) CreateUser(ctx context.Context, payload AdminUserCreatePayload) (*Identity, error) {
	if err := payload.Validate(); err != nil {
		return nil, NewValidationError(localFieldErrors(err))
	}

	var created identityPayload
	if err := s.client.Post(ctx, adminUsersPath+"create/", payload.wire(), &created); err != nil {
		return nil, err
	}
	return created.toIdentity(), nil
}

// UpdateUser patches an account. When the patch changes the currently
// logged-in user's own role, the profile is re-fetched afterwards so route
// guards see the new role on the next navigation; the role change does not
// take effect locally until that refresh resolves.
func (s *SessionStore) UpdateUser(ctx context.Context, userID int64, patch AdminUserUpdatePayload) (*Identity, error) {
	var updated identityPayload
	path := fmt.Sprintf("%s%d/update/", adminUsersPath, userID)
	if err := s.client.Patch(ctx, path, patch.wire(), &updated); err != nil {
		return nil, err
	}

	user := updated.toIdentity()

	if patch.Role != nil && s.isCurrentUser(userID, user.Email) {
		// Sequential on purpose: the dependent profile fetch must not fire
		// before the role update has resolved.
		if err := s.GetProfile(ctx); err != nil {
			s.logger.Warn("profile refresh after own role change failed: %v", err)
		}
	}

	return user, nil
}

// DeleteUser removes an account. Deleting the logged-in account is allowed by
// the backend; the session is left for its next request to discover.
func (s *SessionStore) DeleteUser(ctx context.Context, userID int64) error {
	path := fmt.Sprintf("%s%d/delete/", adminUsersPath, userID)
	return s.client.Delete(ctx, path)
}

// isCurrentUser matches by backend id when the profile carried one, falling
// back to the email since the profile endpoint omits the id.
func (s *SessionStore) isCurrentUser(userID int64, email string) bool {
	if id, ok := s.currentUserID(); ok {
		return id == userID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil && email != "" && s.identity.Email == email
}
