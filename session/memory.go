package session

import (
	"context"
	"sort"
	"sync"

	"github.com/MrEthical07/goIdentity/internal"
)

// MemoryRegistry keeps sessions in process memory.
type MemoryRegistry struct {
	mu     sync.Mutex
	byUser map[string][]*Session
	owner  map[string]string
	opts   registryOptions
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry(opts ...Option) *MemoryRegistry {
	return &MemoryRegistry{
		byUser: make(map[string][]*Session),
		owner:  make(map[string]string),
		opts:   buildOptions(opts),
	}
}

// Create appends a new session for userID. Entries of that user past the
// retention window are dropped first.
func (r *MemoryRegistry) Create(ctx context.Context, userID string, md Metadata) (Session, error) {
	if userID == "" {
		return Session{}, ErrInvalid
	}
	sid, err := internal.NewSessionID()
	if err != nil {
		return Session{}, err
	}
	now := r.opts.now()
	s := &Session{
		ID:             sid.String(),
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
		Metadata:       md.normalized(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked(userID)
	r.byUser[userID] = append(r.byUser[userID], s)
	r.owner[s.ID] = userID
	return *s, nil
}

func (r *MemoryRegistry) Get(ctx context.Context, sessionID string) (Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findLocked(sessionID)
	if s == nil || !r.opts.active(s, r.opts.now()) {
		return Session{}, false, nil
	}
	return *s, true, nil
}

func (r *MemoryRegistry) ListActive(ctx context.Context, userID string) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.now()
	out := make([]Session, 0, len(r.byUser[userID]))
	for _, s := range r.byUser[userID] {
		if r.opts.active(s, now) {
			out = append(out, *s)
		}
	}
	sortByActivity(out)
	return out, nil
}

func (r *MemoryRegistry) Touch(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.now()
	if s := r.findLocked(sessionID); s != nil && r.opts.active(s, now) {
		s.LastActivityAt = now
	}
	return nil
}

func (r *MemoryRegistry) Revoke(ctx context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owner[sessionID]
	if !ok {
		return false, nil
	}
	r.removeLocked(userID, func(s *Session) bool { return s.ID == sessionID })
	return true, nil
}

func (r *MemoryRegistry) RevokeAllExcept(ctx context.Context, userID, keepID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(userID, func(s *Session) bool { return s.ID != keepID }), nil
}

func (r *MemoryRegistry) Prune(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pruneLocked(userID), nil
}

func (r *MemoryRegistry) pruneLocked(userID string) int {
	now := r.opts.now()
	return r.removeLocked(userID, func(s *Session) bool { return !r.opts.active(s, now) })
}

func (r *MemoryRegistry) findLocked(sessionID string) *Session {
	userID, ok := r.owner[sessionID]
	if !ok {
		return nil
	}
	for _, s := range r.byUser[userID] {
		if s.ID == sessionID {
			return s
		}
	}
	return nil
}

func (r *MemoryRegistry) removeLocked(userID string, drop func(*Session) bool) int {
	sessions := r.byUser[userID]
	kept := sessions[:0]
	removed := 0
	for _, s := range sessions {
		if drop(s) {
			delete(r.owner, s.ID)
			removed++
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(sessions); i++ {
		sessions[i] = nil
	}
	if len(kept) == 0 {
		delete(r.byUser, userID)
	} else {
		r.byUser[userID] = kept
	}
	return removed
}

func sortByActivity(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})
}
