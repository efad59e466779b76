package resettoken

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the lifetime of a token issued with a non-positive ttl.
const DefaultTTL = time.Hour

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("reset token backend unavailable")

// Status classifies a presented token.
type Status uint8

const (
	// StatusInvalid means the token is unknown, malformed or already used.
	StatusInvalid Status = iota
	// StatusExpired means the token existed but its lifetime had passed.
	StatusExpired
	// StatusValid means the token was live.
	StatusValid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Redemption is the result of presenting a token. Email is set only when
// Status is StatusValid.
type Redemption struct {
	Email  string
	Status Status
}

// Valid reports whether the token was live.
func (r Redemption) Valid() bool {
	return r.Status == StatusValid
}

// Vault is the reset-token contract. Unknown and expired tokens are
// results, not errors.
type Vault interface {
	Issue(ctx context.Context, email string, ttl time.Duration) (string, error)
	Redeem(ctx context.Context, token string) (Redemption, error)
	Inspect(ctx context.Context, token string) (Redemption, error)
}

// Option configures a vault.
type Option func(*vaultOptions)

type vaultOptions struct {
	now func() time.Time
}

// WithClock replaces the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *vaultOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) vaultOptions {
	o := vaultOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
