// Package goIdentity is the account-security core of a Solid OIDC provider:
// credentials, failed-login lockout, password reset, two-factor
// authentication, sessions and consent.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goIdentity is the composition surface. It exposes [Engine], [Builder],
// [Config], [ProviderConfig] and value types. The components it composes
// live in their own packages (identity, attempts, resettoken, twofactor,
// session, consent) and can be used on their own. Each ships an in-memory
// backend and a Redis backend; identity and consent also have a SQL backend
// in sqlstore.
//
// # What this package must NOT do
//
//   - Tell callers whether an email is registered. Unknown-email logins and
//     password reset requests look like their valid counterparts.
//   - Let mail delivery or audit sinks fail a security operation.
//   - Import any sub-package that re-imports goIdentity (no import cycles).
//
// # Interaction layer
//
// The OIDC provider library is outside this module. It calls
// [Engine.Authenticate], [Engine.ConsentDecision], [Engine.GrantConsent],
// [Engine.ExtraTokenClaims] and [Engine.FindAccount], and reads its own
// settings from [ProviderConfig].
package goIdentity
