package portal

// GuardOutcome is what a route guard decided for a navigation.
type GuardOutcome string

const (
	// GuardAllow renders the protected view.
	GuardAllow GuardOutcome = "allow"
	// GuardWait shows a loading placeholder; issued only while the session
	// store is still bootstrapping. A guard must never redirect in that
	// window, or a logged-in user gets bounced to login on page refresh.
	GuardWait GuardOutcome = "wait"
	// GuardRedirect sends the navigation elsewhere.
	GuardRedirect GuardOutcome = "redirect"
)

// Decision is the result of evaluating a guard against session state.
type Decision struct {
	Outcome GuardOutcome
	// Target is the redirect destination when Outcome is GuardRedirect.
	Target string
}

const (
	// DefaultLoginPath receives unauthenticated navigations.
	DefaultLoginPath = "/login"
	// DefaultDeniedPath receives authenticated users lacking the required
	// role; they land on their own profile.
	DefaultDeniedPath = "/profile"
)

// Guard gates rendering of a protected view based on session state. The
// zero value is an authenticated-only guard with default redirect targets;
// setting AllowedRoles makes it role-restricted.
type Guard struct {
	LoginPath    string
	DeniedPath   string
	AllowedRoles []Role
}

// RequireAuthenticated returns a guard that admits any present identity.
func RequireAuthenticated() Guard {
	return Guard{LoginPath: DefaultLoginPath, DeniedPath: DefaultDeniedPath}
}

// RequireRole returns a guard that admits only identities whose role is in
// the allowed set.
func RequireRole(roles ...Role) Guard {
	g := RequireAuthenticated()
	g.AllowedRoles = roles
	return g
}

// Evaluate decides the navigation synchronously from the given state. It is
// re-run on every navigation and on every identity change.
func (g Guard) Evaluate(state SessionState, identity *Identity) Decision {
	if state == StateBootstrapping {
		return Decision{Outcome: GuardWait}
	}

	if identity == nil || state != StateAuthenticated {
		return Decision{Outcome: GuardRedirect, Target: g.loginPath()}
	}

	if len(g.AllowedRoles) > 0 && !identity.Role.In(g.AllowedRoles...) {
		return Decision{Outcome: GuardRedirect, Target: g.deniedPath()}
	}

	return Decision{Outcome: GuardAllow}
}

// Check evaluates the guard against a live session store.
func (g Guard) Check(store *SessionStore) Decision {
	identity, _ := store.Identity()
	return g.Evaluate(store.State(), identity)
}

func (g Guard) loginPath() string {
	if g.LoginPath != "" {
		return g.LoginPath
	}
	return DefaultLoginPath
}

func (g Guard) deniedPath() string {
	if g.DeniedPath != "" {
		return g.DeniedPath
	}
	return DefaultDeniedPath
}
