// Package attempts counts failed logins per email and locks the account
// when the count reaches a threshold.
//
// The increment and the lock are one atomic step. [MemoryTracker] runs its
// increment inside the credential store's lock through [Locker];
// [RedisTracker] runs both writes in a single Lua script.
//
// Failures are recorded for unknown emails too, so callers can treat every
// failed match the same way.
package attempts
