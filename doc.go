// Package portal implements the client session layer of the school-olympiad
// portal: credential storage, an HTTP client with silent token refresh, and
// role-based route guards over an authenticated session store.
//
// Session lifecycle:
//   - SessionStore owns the Identity and transitions
//     bootstrapping -> {anonymous, authenticated}. The bootstrap check runs
//     once per process and settles exactly once; only a credential the
//     backend confirms invalid ever clears session state, so connectivity
//     loss never silently logs a user out.
//
// Token refresh:
//   - Client attaches the stored access token to every request. A 401
//     triggers exactly one silent refresh against the token-refresh endpoint
//     and one retry of the original request; a second 401 is surfaced as-is.
//     Terminal refresh failure destroys the access/refresh pair atomically
//     and notifies subscribers, which is how the SessionStore learns to drop
//     its Identity without the client ever writing identity state.
//
// Route guards:
//   - Guard evaluates a navigation against session state, yielding allow,
//     wait (while bootstrapping a guard must never redirect), or a redirect
//     target. middleware/sessionguard adapts guards to fiber routes.
package portal
