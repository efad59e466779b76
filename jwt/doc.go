// Package jwt signs the two token kinds the engine hands to clients:
// access tokens bound to a session id, and short-lived challenges that
// carry a password-verified login to its TOTP step.
package jwt
