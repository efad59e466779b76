// Package keys owns the Redis key layout shared by the goIdentity stores.
//
// The credential store and the attempt tracker both touch the user hash
// and the attempt hash from Lua scripts, so the names and field layout
// must come from one place.
//
// # What this package must NOT do
//
//   - Talk to Redis.
//   - Import goIdentity or any sibling package.
package keys

import "strings"

// DefaultPrefix namespaces every key written by goIdentity.
const DefaultPrefix = "gid"

// User hash field names.
const (
	FieldID                = "id"
	FieldEmail             = "email"
	FieldName              = "name"
	FieldPasswordHash      = "password_hash"
	FieldWebID             = "webid"
	FieldTwoFactorEnabled  = "tfa_enabled"
	FieldTwoFactorSecret   = "tfa_secret"
	FieldLocked            = "locked"
	FieldCreatedAt         = "created_at"
	FieldLastLoginAt       = "last_login_at"
	FieldPasswordChangedAt = "password_changed_at"
)

// Attempt hash field names.
const (
	FieldFailureCount  = "count"
	FieldLastFailureAt = "last"
)

// Layout builds keys under a common prefix.
type Layout struct {
	prefix string
}

// New returns a layout rooted at prefix. An empty prefix selects
// DefaultPrefix.
func New(prefix string) Layout {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Layout{prefix: prefix}
}

// Prefix returns the namespace without the trailing separator.
func (l Layout) Prefix() string {
	if l.prefix == "" {
		return DefaultPrefix
	}
	return l.prefix
}

func (l Layout) join(kind, id string) string {
	return l.Prefix() + ":" + kind + ":" + id
}

// User is the hash holding one credential record, keyed by email.
func (l Layout) User(email string) string { return l.join("u", email) }

// UserByID maps a user id to its email.
func (l Layout) UserByID(id string) string { return l.join("uid", id) }

// UserByWebIDPrefix is the key prefix of the WebID index, used from Lua.
func (l Layout) UserByWebIDPrefix() string { return l.Prefix() + ":wid:" }

// UserByWebID maps a WebID to the email of the first identity that claimed it.
func (l Layout) UserByWebID(webID string) string { return l.UserByWebIDPrefix() + webID }

// Attempts is the failed-login hash for an email.
func (l Layout) Attempts(email string) string { return l.join("att", email) }

// ResetToken is the reset-token hash addressed by the hex digest of the token.
func (l Layout) ResetToken(digest string) string { return l.join("rst", digest) }

// Session holds one encoded session.
func (l Layout) Session(sessionID string) string { return l.join("s", sessionID) }

// SessionPrefix is the session key prefix, used from Lua.
func (l Layout) SessionPrefix() string { return l.Prefix() + ":s:" }

// UserSessions is the set of session ids owned by a user.
func (l Layout) UserSessions(userID string) string { return l.join("us", userID) }

// Consents is the hash of consent grants for a user, one field per client.
func (l Layout) Consents(userID string) string { return l.join("c", userID) }

// Throttle is a fixed-window counter for a scope and subject.
func (l Layout) Throttle(scope, subject string) string {
	return l.Prefix() + ":rl:" + scope + ":" + subject
}
