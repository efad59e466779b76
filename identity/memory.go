package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps users in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	byEmail map[string]*User
	byID    map[string]string
	byWebID map[string]string
	opts    options
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		byEmail: make(map[string]*User),
		byID:    make(map[string]string),
		byWebID: make(map[string]string),
		opts:    o,
	}
}

// OnUnlock registers the attempt tracker cleared when an account is unlocked.
func (s *MemoryStore) OnUnlock(r AttemptResetter) {
	s.mu.Lock()
	s.opts.resetter = r
	s.mu.Unlock()
}

func (s *MemoryStore) Create(ctx context.Context, email, passwordHash, webID string) (User, error) {
	if !validEmail(email) {
		return User{}, ErrInvalid
	}
	if webID == "" {
		webID = DeriveWebID(s.opts.webIDBase, email)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return User{}, ErrAlreadyExists
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		WebID:        webID,
		CreatedAt:    s.opts.now(),
	}
	s.byEmail[email] = u
	s.byID[u.ID] = email
	if _, taken := s.byWebID[webID]; !taken {
		s.byWebID[webID] = email
	}
	return *u, nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byEmail[email]
	if !ok {
		return User{}, false, nil
	}
	return *u, true, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.byID[id]
	if !ok {
		return User{}, false, nil
	}
	return *s.byEmail[email], true, nil
}

func (s *MemoryStore) FindByWebID(ctx context.Context, webID string) (User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.byWebID[webID]
	if !ok {
		return User{}, false, nil
	}
	return *s.byEmail[email], true, nil
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	return s.mutate(email, func(u *User) {
		u.PasswordHash = passwordHash
		u.PasswordChangedAt = s.opts.now()
	})
}

// SetLocked toggles the lock flag. Unlocking clears the attempt record
// while the store lock is held, so no failure can be counted against the
// old record once the account reads as unlocked.
func (s *MemoryStore) SetLocked(ctx context.Context, email string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byEmail[email]
	if !ok {
		return ErrNotFound
	}
	u.Locked = locked
	if !locked && s.opts.resetter != nil {
		return s.opts.resetter.Reset(ctx, email)
	}
	return nil
}

func (s *MemoryStore) IsLocked(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byEmail[email]
	return ok && u.Locked, nil
}

// LockIfReached runs reached under the store lock and locks the account
// when it reports true. lockedNow is set only when this call set the flag.
// Unknown emails are never locked but reached still runs.
func (s *MemoryStore) LockIfReached(ctx context.Context, email string, reached func() bool) (locked, lockedNow bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hit := reached()
	u, ok := s.byEmail[email]
	if !ok {
		return false, false, nil
	}
	if hit && !u.Locked {
		u.Locked = true
		return true, true, nil
	}
	return u.Locked, false, nil
}

func (s *MemoryStore) RecordSuccessfulLogin(ctx context.Context, email string) error {
	return s.mutate(email, func(u *User) {
		u.LastLoginAt = s.opts.now()
	})
}

func (s *MemoryStore) SetTwoFactor(ctx context.Context, email string, enabled bool, secret string) error {
	return s.mutate(email, func(u *User) {
		u.TwoFactorEnabled = enabled
		if enabled {
			u.TwoFactorSecret = secret
		} else {
			u.TwoFactorSecret = ""
		}
	})
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, email string, update ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byEmail[email]
	if !ok {
		return ErrNotFound
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.WebID != nil && *update.WebID != u.WebID {
		if s.byWebID[u.WebID] == email {
			delete(s.byWebID, u.WebID)
		}
		u.WebID = *update.WebID
		if _, taken := s.byWebID[u.WebID]; !taken {
			s.byWebID[u.WebID] = email
		}
	}
	return nil
}

// Len reports the number of stored identities.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byEmail)
}

func (s *MemoryStore) mutate(email string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byEmail[email]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	return nil
}
