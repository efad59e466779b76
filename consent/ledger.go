package consent

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	// ErrInvalid is returned for an empty user or client id.
	ErrInvalid = errors.New("invalid consent input")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("consent backend unavailable")
)

// Grant is the set of scopes a user approved for one client.
type Grant struct {
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	GrantedAt time.Time `json:"granted_at"`
}

// Covers reports whether every required scope is in the grant.
func (g Grant) Covers(required ...string) bool {
	return len(Missing(g.Scopes, required)) == 0
}

// Ledger is the consent contract.
type Ledger interface {
	// Grant stores scopes for (userID, clientID), replacing any earlier grant.
	Grant(ctx context.Context, userID, clientID string, scopes []string) (Grant, error)
	// HasConsent reports whether a grant exists and covers required.
	HasConsent(ctx context.Context, userID, clientID string, required ...string) (bool, error)
	// List returns the user's grants ordered by client id.
	List(ctx context.Context, userID string) ([]Grant, error)
	// Revoke deletes a grant and reports whether one existed.
	Revoke(ctx context.Context, userID, clientID string) (bool, error)
}

// NormalizeScopes trims, de-duplicates and sorts scopes. Empty entries are
// dropped. Scope comparison is case-sensitive.
func NormalizeScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ParseScopes splits a space separated scope parameter.
func ParseScopes(param string) []string {
	return NormalizeScopes(strings.Fields(param))
}

// Missing returns the requested scopes absent from granted, normalized.
func Missing(granted, requested []string) []string {
	have := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		have[s] = struct{}{}
	}
	var out []string
	for _, s := range NormalizeScopes(requested) {
		if _, ok := have[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// Option configures a ledger.
type Option func(*ledgerOptions)

type ledgerOptions struct {
	now func() time.Time
}

// WithClock replaces the time source used for GrantedAt.
func WithClock(now func() time.Time) Option {
	return func(o *ledgerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) ledgerOptions {
	o := ledgerOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewGrant validates ids and builds a grant stamped at now. Backends
// outside this package use it so all of them agree on normalization.
func NewGrant(userID, clientID string, scopes []string, now time.Time) (Grant, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(clientID) == "" {
		return Grant{}, ErrInvalid
	}
	return Grant{
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    NormalizeScopes(scopes),
		GrantedAt: now.UTC().Truncate(time.Millisecond),
	}, nil
}

// SortByClient orders grants by client id.
func SortByClient(grants []Grant) {
	sort.Slice(grants, func(i, j int) bool { return grants[i].ClientID < grants[j].ClientID })
}
