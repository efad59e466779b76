package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by mutations on an email that is not registered.
	ErrNotFound = errors.New("identity not found")
	// ErrAlreadyExists is returned when the email key is already registered.
	ErrAlreadyExists = errors.New("identity already exists")
	// ErrInvalid is returned for malformed input such as an empty email.
	ErrInvalid = errors.New("invalid identity input")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("identity backend unavailable")
)

// DefaultWebIDBase is used when no base URL is configured for derived WebIDs.
const DefaultWebIDBase = "https://user.example.org"

// User is a credential record. Values returned by a Store are copies.
type User struct {
	ID                string
	Email             string
	Name              string
	PasswordHash      string
	WebID             string
	TwoFactorEnabled  bool
	TwoFactorSecret   string
	Locked            bool
	CreatedAt         time.Time
	LastLoginAt       time.Time
	PasswordChangedAt time.Time
}

// ProfileUpdate carries optional profile edits. Nil fields are left alone.
type ProfileUpdate struct {
	Name  *string
	WebID *string
}

// AttemptResetter clears the failed-login record of an email.
type AttemptResetter interface {
	Reset(ctx context.Context, email string) error
}

// Store is the credential store contract.
//
// Finders report absence with ok == false and a nil error.
type Store interface {
	Create(ctx context.Context, email, passwordHash, webID string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, bool, error)
	FindByID(ctx context.Context, id string) (User, bool, error)
	FindByWebID(ctx context.Context, webID string) (User, bool, error)
	UpdatePasswordHash(ctx context.Context, email, passwordHash string) error
	SetLocked(ctx context.Context, email string, locked bool) error
	IsLocked(ctx context.Context, email string) (bool, error)
	RecordSuccessfulLogin(ctx context.Context, email string) error
	SetTwoFactor(ctx context.Context, email string, enabled bool, secret string) error
	UpdateProfile(ctx context.Context, email string, update ProfileUpdate) error
}

// DeriveWebID builds the placeholder WebID used when a user registers
// without one: <base>/profile/<local part>#me.
func DeriveWebID(base, email string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultWebIDBase
	}
	local := email
	if i := strings.LastIndex(email, "@"); i >= 0 {
		local = email[:i]
	}
	return base + "/profile/" + local + "#me"
}

// Option configures a store.
type Option func(*options)

type options struct {
	now       func() time.Time
	webIDBase string
	resetter  AttemptResetter
}

func defaultOptions() options {
	return options{
		now:       time.Now,
		webIDBase: DefaultWebIDBase,
	}
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithWebIDBase sets the base URL for derived WebIDs.
func WithWebIDBase(base string) Option {
	return func(o *options) {
		if strings.TrimSpace(base) != "" {
			o.webIDBase = base
		}
	}
}

// WithAttemptResetter registers the tracker cleared on unlock.
func WithAttemptResetter(r AttemptResetter) Option {
	return func(o *options) {
		o.resetter = r
	}
}

func validEmail(email string) bool {
	return strings.TrimSpace(email) != "" && email == strings.TrimSpace(email)
}
