package attempts

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultThreshold is the failure count that locks an account.
	DefaultThreshold = 5
	// DefaultRetention is how long a record survives its last failure
	// when no Window is set.
	DefaultRetention = 24 * time.Hour
)

var (
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("attempt tracker backend unavailable")
	// ErrInvalidConfig is returned by constructors for unusable settings.
	ErrInvalidConfig = errors.New("invalid attempt tracker config")
)

// Record is the failed-login state of one email.
type Record struct {
	Email         string
	FailureCount  int
	LastFailureAt time.Time
}

// Outcome is the result of RecordFailure.
type Outcome struct {
	// Count is the failure count after the increment.
	Count int
	// Locked reports whether the account is locked once the call returns.
	Locked bool
	// LockedNow is set on the one call that moved the account from
	// unlocked to locked.
	LockedNow bool
}

// Config controls locking behavior.
type Config struct {
	Threshold int
	// Window restarts the count when the previous failure is older than
	// this. Zero keeps counting until a reset or until Retention passes.
	Window time.Duration
	// Retention drops a record this long after its last failure when
	// Window is zero. Records for unknown emails are only ever removed
	// this way.
	Retention time.Duration
}

func (c Config) withDefaults() (Config, error) {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Threshold < 1 {
		return c, ErrInvalidConfig
	}
	if c.Retention == 0 {
		c.Retention = DefaultRetention
	}
	if c.Window < 0 || c.Retention < 0 {
		return c, ErrInvalidConfig
	}
	return c, nil
}

// ttl is how long a record outlives its last failure.
func (c Config) ttl() time.Duration {
	if c.Window > 0 {
		return c.Window
	}
	return c.Retention
}

// Tracker is the attempt tracker contract.
type Tracker interface {
	RecordFailure(ctx context.Context, email string) (Outcome, error)
	Reset(ctx context.Context, email string) error
	IsLocked(ctx context.Context, email string) (bool, error)
	Get(ctx context.Context, email string) (Record, bool, error)
}

// Locker is the slice of the credential store the memory tracker needs.
// LockIfReached must call reached while holding the lock that guards the
// account's lock flag. lockedNow reports that this call set the flag.
type Locker interface {
	LockIfReached(ctx context.Context, email string, reached func() bool) (locked, lockedNow bool, err error)
	IsLocked(ctx context.Context, email string) (bool, error)
}

// Option configures a tracker.
type Option func(*trackerOptions)

type trackerOptions struct {
	now func() time.Time
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *trackerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) trackerOptions {
	o := trackerOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
