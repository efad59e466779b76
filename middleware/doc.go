// Package middleware adapts goIdentity sessions to net/http.
//
// [RequireSession] reads a bearer access token, resolves it through
// Engine.Authenticate and stores the [goIdentity.Principal] in the request
// context. [ClientMetadata] records the caller's address and user agent so
// sessions created further down the chain carry them.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every
// decision is delegated to the Engine.
//
// # What this package must NOT do
//
//   - Parse or sign tokens directly.
//   - Access any storage backend.
package middleware
