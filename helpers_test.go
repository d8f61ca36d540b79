package portal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	portal "github.com/olympiadhub/go-portal"
)

// fakeBackend simulates the Django-style REST API the session layer talks
// to: token issuance, one-shot refresh, profile, and admin user CRUD.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu sync.Mutex

	email    string
	password string

	accessToken  string
	refreshToken string
	mintCounter  int

	failRefresh bool

	profile map[string]any
	users   []map[string]any

	refreshCalls int
	profileCalls int
	tokenCalls   int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	f := &fakeBackend{
		t:            t,
		email:        "anna@example.lv",
		password:     "correct horse",
		accessToken:  "access-1",
		refreshToken: "refresh-1",
		profile: map[string]any{
			"email":     "anna@example.lv",
			"name":      "Anna",
			"last_name": "Ozola",
			"number":    "+37129999999",
			"user_type": "normal",
			"is_active": true,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/", f.handleToken)
	mux.HandleFunc("/api/token/refresh/", f.handleRefresh)
	mux.HandleFunc("/api/profile/", f.handleProfile)
	mux.HandleFunc("/api/profile/update/", f.handleProfileUpdate)
	mux.HandleFunc("/api/profile/change-password/", f.handleChangePassword)
	mux.HandleFunc("/api/admin/users/", f.handleAdminUsers)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBackend) URL() string { return f.srv.URL }

func (f *fakeBackend) Close() { f.srv.Close() }

// expireAccess invalidates the current access token so the next
// authenticated call returns 401.
func (f *fakeBackend) expireAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessToken = "expired-" + f.accessToken
}

func (f *fakeBackend) setRole(role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile["user_type"] = role
}

func (f *fakeBackend) counts() (token, refresh, profile int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.refreshCalls, f.profileCalls
}

func (f *fakeBackend) currentAccess() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accessToken
}

func (f *fakeBackend) authorized(r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return r.Header.Get("Authorization") == "Bearer "+f.accessToken
}

func (f *fakeBackend) handleToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.tokenCalls++
	f.mu.Unlock()

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if body.Email != f.email || body.Password != f.password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"detail": "No active account found with the given credentials",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access":  f.accessToken,
		"refresh": f.refreshToken,
	})
}

func (f *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++

	if f.failRefresh || body.Refresh != f.refreshToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"detail": "Token is invalid or expired",
		})
		return
	}

	f.mintCounter++
	f.accessToken = "access-minted-" + time.Now().Format("150405") + "-" + strings.Repeat("x", f.mintCounter)
	writeJSON(w, http.StatusOK, map[string]any{"access": f.accessToken})
}

func (f *fakeBackend) handleProfile(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.profileCalls++
	f.mu.Unlock()

	if !f.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Given token not valid"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, f.profile)
}

func (f *fakeBackend) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Given token not valid"})
		return
	}

	patch := map[string]any{}
	json.NewDecoder(r.Body).Decode(&patch)

	f.mu.Lock()
	defer f.mu.Unlock()
	for key, val := range patch {
		f.profile[key] = val
	}
	writeJSON(w, http.StatusOK, f.profile)
}

func (f *fakeBackend) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Given token not valid"})
		return
	}

	var body struct {
		Old     string `json:"old_password"`
		New     string `json:"new_password"`
		Confirm string `json:"confirm_password"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if body.Old != f.password {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"old_password": []string{"Nepareiza parole"},
		})
		return
	}
	f.password = body.New
	writeJSON(w, http.StatusOK, map[string]any{"detail": "ok"})
}

func (f *fakeBackend) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Given token not valid"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/users/")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		search := r.URL.Query().Get("search")
		matches := []map[string]any{}
		for _, user := range f.users {
			email, _ := user["email"].(string)
			if search == "" || strings.Contains(email, search) {
				matches = append(matches, user)
			}
		}
		writeJSON(w, http.StatusOK, matches)
	case rest == "create/" && r.Method == http.MethodPost:
		user := map[string]any{}
		json.NewDecoder(r.Body).Decode(&user)
		user["id"] = float64(len(f.users) + 100)
		f.users = append(f.users, user)
		writeJSON(w, http.StatusCreated, user)
	case strings.HasSuffix(rest, "/update/") && r.Method == http.MethodPatch:
		id := strings.TrimSuffix(rest, "/update/")
		patch := map[string]any{}
		json.NewDecoder(r.Body).Decode(&patch)
		for _, user := range f.users {
			if jsonNumber(user["id"]) == id {
				for key, val := range patch {
					user[key] = val
				}
				// Role changes on the logged-in account also show up on
				// the profile endpoint, like the real backend.
				if email, _ := user["email"].(string); email == f.email {
					if role, ok := patch["user_type"]; ok {
						f.profile["user_type"] = role
					}
				}
				writeJSON(w, http.StatusOK, user)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found"})
	case strings.HasSuffix(rest, "/delete/") && r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found"})
	}
}

func jsonNumber(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// newSession builds a client + store pair against the fake backend with
// in-memory credential storage.
func newSession(f *fakeBackend) (*portal.Client, *portal.SessionStore, *portal.MemoryCredentials) {
	creds := portal.NewMemoryCredentials()
	client := portal.NewClient(f.URL(), creds)
	store := portal.NewSessionStore(client)
	return client, store, creds
}

// signedToken mints an HS256 token with the given expiry for tests that
// inspect token claims.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
