// Package twofactor generates TOTP enrollment secrets and verifies codes.
//
// The [Manager] is stateless. An enrollment moves from unenrolled to
// pending when a secret is issued and to enrolled when the caller persists
// it after a successful [Manager.VerifyCode]. The pending secret lives with
// the caller until then.
//
// Codes are six digits over 30-second steps with one step of skew on
// either side, HMAC-SHA1, as every authenticator app expects.
package twofactor
