// Package identity is the credential store: user records keyed by email,
// with lookups by id and WebID, lock state and two-factor enrollment.
//
// Three backends implement [Store]:
//
//   - [MemoryStore] — process-local maps behind one mutex.
//   - [RedisStore] — one hash per user plus id and WebID index keys.
//   - sqlstore.Store — durable SQL tables (separate package).
//
// Unlocking an account also clears its failed-login record. The Redis
// backend does this inside the unlock script; the other backends call the
// registered [AttemptResetter].
package identity
