package session

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"
)

// DefaultRetention is how long an idle session stays listable.
const DefaultRetention = 30 * 24 * time.Hour

const (
	maxIPBytes        = 64
	maxUserAgentBytes = 512
)

var (
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("session backend unavailable")
	// ErrInvalid is returned for an empty user id.
	ErrInvalid = errors.New("invalid session input")
)

// Metadata describes the client that created a session.
type Metadata struct {
	IP        string
	UserAgent string
}

func (m Metadata) normalized() Metadata {
	m.IP = truncate(m.IP, maxIPBytes)
	m.UserAgent = truncate(m.UserAgent, maxUserAgentBytes)
	return m
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Session is one authenticated session. It references its user by id only.
type Session struct {
	ID             string
	UserID         string
	CreatedAt      time.Time
	LastActivityAt time.Time
	Metadata       Metadata
}

// Registry is the session registry contract.
type Registry interface {
	Create(ctx context.Context, userID string, md Metadata) (Session, error)
	Get(ctx context.Context, sessionID string) (Session, bool, error)
	ListActive(ctx context.Context, userID string) ([]Session, error)
	Touch(ctx context.Context, sessionID string) error
	Revoke(ctx context.Context, sessionID string) (bool, error)
	// RevokeAllExcept removes every session of userID other than keepID
	// and returns how many were removed. An empty keepID removes all.
	RevokeAllExcept(ctx context.Context, userID, keepID string) (int, error)
	Prune(ctx context.Context, userID string) (int, error)
}

// Option configures a registry.
type Option func(*registryOptions)

type registryOptions struct {
	now       func() time.Time
	retention time.Duration
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *registryOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRetention overrides DefaultRetention.
func WithRetention(d time.Duration) Option {
	return func(o *registryOptions) {
		if d > 0 {
			o.retention = d
		}
	}
}

func buildOptions(opts []Option) registryOptions {
	o := registryOptions{now: time.Now, retention: DefaultRetention}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o registryOptions) active(s *Session, now time.Time) bool {
	return now.Sub(s.LastActivityAt) <= o.retention
}
