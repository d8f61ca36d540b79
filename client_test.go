package portal_test

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	portal "github.com/olympiadhub/go-portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRefreshIsTransparent(t *testing.T) {
	backend := newFakeBackend(t)
	creds := portal.NewMemoryCredentials()
	require.NoError(t, creds.Save(portal.CredentialPair{
		Access:  backend.currentAccess(),
		Refresh: "refresh-1",
	}))

	client := portal.NewClient(backend.URL(), creds)

	// Authenticated call works with the stored access token.
	profile := map[string]any{}
	require.NoError(t, client.Get(context.Background(), "/api/profile/", &profile))
	assert.Equal(t, "anna@example.lv", profile["email"])

	// Expire the token server side. The next call hits a 401, refreshes
	// once and retries without the caller noticing.
	backend.expireAccess()
	profile = map[string]any{}
	require.NoError(t, client.Get(context.Background(), "/api/profile/", &profile))
	assert.Equal(t, "anna@example.lv", profile["email"])

	_, refreshCalls, _ := backend.counts()
	assert.Equal(t, 1, refreshCalls)

	// The minted access token replaced the old one, the refresh token
	// survived untouched.
	pair, ok, err := creds.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, backend.currentAccess(), pair.Access)
	assert.Equal(t, "refresh-1", pair.Refresh)
}

func TestClientRefreshHappensAtMostOncePerRequest(t *testing.T) {
	backend := newFakeBackend(t)
	creds := portal.NewMemoryCredentials()
	require.NoError(t, creds.Save(portal.CredentialPair{
		Access:  "stale-access",
		Refresh: "refresh-1",
	}))

	client := portal.NewClient(backend.URL(), creds)

	// The refresh succeeds but the retried request still comes back 401
	// because we immediately expire the minted token again.
	backend.expireAccess()
	attempts := 0
	backend.srv.Config.Handler = interceptProfile(backend, func() {
		attempts++
		backend.expireAccess()
	})

	err := client.Get(context.Background(), "/api/profile/", nil)
	require.Error(t, err)

	var rich *goerrors.Error
	require.ErrorAs(t, err, &rich)
	assert.Equal(t, goerrors.CategoryAuth, rich.Category)

	_, refreshCalls, _ := backend.counts()
	assert.Equal(t, 1, refreshCalls, "a second 401 must propagate, not loop")
	assert.Equal(t, 2, attempts, "original request plus exactly one retry")
}

func TestClientRefreshRejectionDestroysBothTokens(t *testing.T) {
	backend := newFakeBackend(t)
	backend.failRefresh = true

	creds := portal.NewMemoryCredentials()
	require.NoError(t, creds.Save(portal.CredentialPair{
		Access:  "stale-access",
		Refresh: "refresh-1",
	}))

	client := portal.NewClient(backend.URL(), creds)

	invalidated := false
	client.OnCredentialsInvalidated(func() { invalidated = true })

	err := client.Get(context.Background(), "/api/profile/", nil)
	require.Error(t, err)
	assert.True(t, portal.IsCredentialInvalid(err))

	// Both tokens are gone, never just one of them.
	_, ok, loadErr := creds.Load()
	require.NoError(t, loadErr)
	assert.False(t, ok)
	assert.True(t, invalidated, "invalidation listeners must fire")
}

func TestClientTransientRefreshFailureKeepsTokens(t *testing.T) {
	backend := newFakeBackend(t)
	creds := portal.NewMemoryCredentials()
	require.NoError(t, creds.Save(portal.CredentialPair{
		Access:  "stale-access",
		Refresh: "refresh-1",
	}))

	client := portal.NewClient(backend.URL(), creds)

	// Refresh endpoint blows up with a 500. That is not a verdict on the
	// refresh token, so the stored pair must survive.
	backend.srv.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/token/refresh/" {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "boom"})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Given token not valid"})
	})

	err := client.Get(context.Background(), "/api/profile/", nil)
	require.Error(t, err)
	assert.True(t, portal.IsTransient(err))
	assert.False(t, portal.IsCredentialInvalid(err))

	pair, ok, loadErr := creds.Load()
	require.NoError(t, loadErr)
	require.True(t, ok)
	assert.Equal(t, "refresh-1", pair.Refresh)
}

func TestClientLoginFailureDoesNotTriggerRefresh(t *testing.T) {
	backend := newFakeBackend(t)
	creds := portal.NewMemoryCredentials()
	client := portal.NewClient(backend.URL(), creds)

	body := map[string]any{"email": "anna@example.lv", "password": "wrong"}
	err := client.Post(context.Background(), "/api/token/", body, nil)
	require.Error(t, err)

	_, refreshCalls, _ := backend.counts()
	assert.Zero(t, refreshCalls, "token endpoints are exempt from the refresh protocol")
}

func TestClientDecodesFieldErrors(t *testing.T) {
	backend := newFakeBackend(t)
	backend.srv.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"email": []string{"Lietotājs ar šādu e-pastu jau eksistē"},
		})
	})

	client := portal.NewClient(backend.URL(), portal.NewMemoryCredentials())
	err := client.Post(context.Background(), "/api/register/", map[string]any{}, nil)
	require.Error(t, err)

	fields, ok := portal.ValidationFields(err)
	require.True(t, ok)
	assert.Contains(t, fields.First("email"), "eksistē")
}

// interceptProfile wraps the fake backend so every profile hit runs a hook
// before the normal handler.
func interceptProfile(backend *fakeBackend, hook func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/profile/" {
			hook()
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Given token not valid"})
			return
		}
		backend.handleRefresh(w, r)
	})
}
