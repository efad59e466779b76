// Package consent records which scopes a user has granted to each OAuth
// client. There is at most one grant per (user, client); granting again
// replaces the scope set.
//
// Backends: [MemoryLedger], [RedisLedger] (one hash per user, one JSON
// field per client) and sqlstore.Store.
package consent
