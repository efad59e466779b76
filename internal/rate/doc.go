// Package rate throttles abuse-prone engine operations such as
// registration and password-reset requests, keyed by scope and subject.
//
// [RedisLimiter] keeps fixed-window counters (INCR, EXPIRE on first hit)
// so limits hold across engine instances. [MemoryLimiter] keeps one token
// bucket per key for single-process deployments.
package rate
