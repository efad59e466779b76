// Package resettoken issues and redeems single-use password-reset tokens.
//
// Tokens are 32 random bytes, base64url encoded. Only the SHA-256 digest of
// a token is stored. Expiry is checked lazily when a token is presented;
// an expired record is deleted at that point.
package resettoken
