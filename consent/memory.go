package consent

import (
	"context"
	"sync"
)

// MemoryLedger keeps grants in process memory.
type MemoryLedger struct {
	mu     sync.RWMutex
	grants map[string]map[string]Grant
	opts   ledgerOptions
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger(opts ...Option) *MemoryLedger {
	return &MemoryLedger{
		grants: make(map[string]map[string]Grant),
		opts:   buildOptions(opts),
	}
}

func (l *MemoryLedger) Grant(ctx context.Context, userID, clientID string, scopes []string) (Grant, error) {
	g, err := NewGrant(userID, clientID, scopes, l.opts.now())
	if err != nil {
		return Grant{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	byClient, ok := l.grants[userID]
	if !ok {
		byClient = make(map[string]Grant)
		l.grants[userID] = byClient
	}
	byClient[clientID] = g
	return clone(g), nil
}

func (l *MemoryLedger) HasConsent(ctx context.Context, userID, clientID string, required ...string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	g, ok := l.grants[userID][clientID]
	if !ok {
		return false, nil
	}
	return g.Covers(required...), nil
}

func (l *MemoryLedger) List(ctx context.Context, userID string) ([]Grant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Grant, 0, len(l.grants[userID]))
	for _, g := range l.grants[userID] {
		out = append(out, clone(g))
	}
	SortByClient(out)
	return out, nil
}

func (l *MemoryLedger) Revoke(ctx context.Context, userID, clientID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byClient, ok := l.grants[userID]
	if !ok {
		return false, nil
	}
	if _, ok := byClient[clientID]; !ok {
		return false, nil
	}
	delete(byClient, clientID)
	if len(byClient) == 0 {
		delete(l.grants, userID)
	}
	return true, nil
}

func clone(g Grant) Grant {
	g.Scopes = append([]string(nil), g.Scopes...)
	return g
}
