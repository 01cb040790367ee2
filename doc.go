// Package sphereauth provides the authentication and session core of the
// AlumniSphere application: a durable account registry, a single-session
// store with login/signup/logout, and role-based route guarding for the
// two AlumniSphere roles (student and alumni).
//
// The package is built around a durable key-value medium ([storage.Backend]):
// the registry of all registered accounts and the current session projection
// are the only persisted state. Backends exist for Redis, SQLite files, and
// in-memory use; all of them expose versioned compare-and-swap writes so
// that the signup uniqueness check remains safe when several contexts share
// one medium.
//
// # Architecture boundaries
//
// sphereauth is the public surface. It exposes [Store], [Builder], [Config],
// the account and session value types, and the route-guard decision types.
// Audit dispatch and metric counters live under internal/ and are never
// exported directly.
//
// # What this package must NOT do
//
//   - Expose storage clients or key layouts in its public API.
//   - Perform I/O outside of Store methods (construction via Builder is
//     allocation-only; the first storage access happens in
//     [Store.Initialize]).
//   - Import any sub-package that re-imports sphereauth (no import cycles).
//
// # Session model
//
// A Store owns at most one session, mirroring one browser context. The
// session is a projection of exactly one account with the secret hash
// stripped; it is rehydrated from durable storage by Initialize, set by
// Login and Signup, and cleared by Logout. Readers observe it through
// [Store.CurrentUser] or a [Store.Subscribe] channel.
package sphereauth
