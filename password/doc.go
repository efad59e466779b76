// Package password hashes and verifies passwords.
//
// [Argon2] is the default scheme and encodes hashes in PHC format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] verifies hashes carried over from older deployments. [Chain]
// combines them: new hashes use the primary scheme, stored hashes are
// verified by the scheme that recognises them, and NeedsUpgrade tells the
// caller to re-hash after a successful login.
//
// Password policy (minimum length, reuse) belongs to the caller. This
// package never stores or logs plaintext.
package password
