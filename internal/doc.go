// Package internal contains helpers that are private to goIdentity, mainly
// identifier and token generation.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - keys — Redis key layout shared by the stores
//   - rate — throttles for reset requests and registrations
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
//   - Be imported by any package outside the goIdentity module.
package internal
