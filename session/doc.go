// Package session tracks authenticated sessions per user and supports
// enumeration and revocation.
//
// # Backends
//
//   - [MemoryRegistry] — per-user slices and an id index behind one mutex.
//   - [RedisRegistry] — one binary-encoded value per session plus a set of
//     session ids per user. Revocation runs as Lua scripts so the value and
//     the index change together.
//
// # Retention
//
// A session whose last activity is older than the retention window
// (30 days by default) is treated as absent. [Registry.ListActive] filters
// such entries without mutating anything; [Registry.Prune] deletes them.
//
// # What this package must NOT do
//
//   - Import goIdentity, jwt, or identity (no upward imports).
//   - Decide whether a user may authenticate.
package session
