package password

import "errors"

var (
	// ErrEmptyPassword is returned when hashing or verifying "".
	ErrEmptyPassword = errors.New("password is empty")
	// ErrPasswordTooLong is returned when the input exceeds the hasher limit.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrUnrecognizedHash is returned for a stored hash no hasher can parse.
	ErrUnrecognizedHash = errors.New("unrecognized password hash")
)

// Hasher hashes and verifies passwords. Verify returns (false, nil) on a
// mismatch and an error only for unusable input.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Scheme is a Hasher that can identify its own encodings.
type Scheme interface {
	Hasher
	Recognizes(encodedHash string) bool
	NeedsUpgrade(encodedHash string) (bool, error)
}
