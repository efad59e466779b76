package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingResetter struct {
	mu     sync.Mutex
	emails []string
}

func (r *countingResetter) Reset(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, email)
	return nil
}

func newRedisStoreTest(t *testing.T, opts ...Option) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "test", opts...), mr
}

func backends(t *testing.T, opts ...Option) map[string]Store {
	t.Helper()
	rs, _ := newRedisStoreTest(t, opts...)
	return map[string]Store{
		"memory": NewMemoryStore(opts...),
		"redis":  rs,
	}
}

func TestCreateDerivesWebIDAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			u, err := store.Create(ctx, "alice@example.com", "hash-1", "")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if u.ID == "" {
				t.Fatal("expected generated id")
			}
			if u.WebID != "https://user.example.org/profile/alice#me" {
				t.Fatalf("unexpected derived webid %q", u.WebID)
			}

			_, err = store.Create(ctx, "alice@example.com", "hash-2", "")
			if !errors.Is(err, ErrAlreadyExists) {
				t.Fatalf("expected ErrAlreadyExists, got %v", err)
			}

			got, ok, err := store.FindByEmail(ctx, "alice@example.com")
			if err != nil || !ok {
				t.Fatalf("find: ok=%v err=%v", ok, err)
			}
			if got.ID != u.ID || got.PasswordHash != "hash-1" {
				t.Fatalf("duplicate create must not overwrite: %+v", got)
			}
		})
	}
}

func TestEmailKeyIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Create(ctx, "Bob@example.com", "h", ""); err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, ok, _ := store.FindByEmail(ctx, "bob@example.com"); ok {
				t.Fatal("lookup must be case-sensitive")
			}
			if _, err := store.Create(ctx, "bob@example.com", "h", "https://pod.example/bob#me"); err != nil {
				t.Fatalf("differently cased email should be a new identity: %v", err)
			}
		})
	}
}

func TestCreateRejectsEmptyEmail(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Create(ctx, "", "h", ""); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestFindersReportAbsenceWithoutError(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := store.FindByEmail(ctx, "nobody@example.com"); ok || err != nil {
				t.Fatalf("email: ok=%v err=%v", ok, err)
			}
			if _, ok, err := store.FindByID(ctx, "missing"); ok || err != nil {
				t.Fatalf("id: ok=%v err=%v", ok, err)
			}
			if _, ok, err := store.FindByWebID(ctx, "https://x/#me"); ok || err != nil {
				t.Fatalf("webid: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestFindByIDAndWebID(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			u, err := store.Create(ctx, "carol@example.com", "h", "https://carol.pod/profile/card#me")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			byID, ok, err := store.FindByID(ctx, u.ID)
			if err != nil || !ok || byID.Email != u.Email {
				t.Fatalf("find by id: %+v ok=%v err=%v", byID, ok, err)
			}
			byWebID, ok, err := store.FindByWebID(ctx, u.WebID)
			if err != nil || !ok || byWebID.ID != u.ID {
				t.Fatalf("find by webid: %+v ok=%v err=%v", byWebID, ok, err)
			}
		})
	}
}

func TestWebIDIndexKeepsFirstClaimant(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := store.Create(ctx, "dana@one.example", "h", "")
			if err != nil {
				t.Fatalf("create first: %v", err)
			}
			if _, err := store.Create(ctx, "dana@two.example", "h", ""); err != nil {
				t.Fatalf("create second: %v", err)
			}
			got, ok, err := store.FindByWebID(ctx, first.WebID)
			if err != nil || !ok {
				t.Fatalf("find: ok=%v err=%v", ok, err)
			}
			if got.Email != "dana@one.example" {
				t.Fatalf("expected first claimant, got %q", got.Email)
			}
		})
	}
}

func TestUpdatePasswordHashStampsChange(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	for name, store := range backends(t, WithClock(func() time.Time { return now })) {
		t.Run(name, func(t *testing.T) {
			if err := store.UpdatePasswordHash(ctx, "ghost@example.com", "x"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := store.Create(ctx, "erin@example.com", "old", ""); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.UpdatePasswordHash(ctx, "erin@example.com", "new"); err != nil {
				t.Fatalf("update: %v", err)
			}
			u, _, _ := store.FindByEmail(ctx, "erin@example.com")
			if u.PasswordHash != "new" {
				t.Fatalf("hash not replaced: %q", u.PasswordHash)
			}
			if !u.PasswordChangedAt.Equal(now) {
				t.Fatalf("passwordChangedAt = %v, want %v", u.PasswordChangedAt, now)
			}
		})
	}
}

func TestRecordSuccessfulLogin(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_500, 0)
	for name, store := range backends(t, WithClock(func() time.Time { return now })) {
		t.Run(name, func(t *testing.T) {
			if err := store.RecordSuccessfulLogin(ctx, "ghost@example.com"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := store.Create(ctx, "fay@example.com", "h", ""); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.RecordSuccessfulLogin(ctx, "fay@example.com"); err != nil {
				t.Fatalf("record: %v", err)
			}
			u, _, _ := store.FindByEmail(ctx, "fay@example.com")
			if !u.LastLoginAt.Equal(now) {
				t.Fatalf("lastLoginAt = %v, want %v", u.LastLoginAt, now)
			}
		})
	}
}

func TestSetLockedTogglesAndResetsAttempts(t *testing.T) {
	ctx := context.Background()

	resetter := &countingResetter{}
	mem := NewMemoryStore(WithAttemptResetter(resetter))
	if _, err := mem.Create(ctx, "gus@example.com", "h", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mem.SetLocked(ctx, "gus@example.com", true); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if locked, _ := mem.IsLocked(ctx, "gus@example.com"); !locked {
		t.Fatal("expected locked")
	}
	if len(resetter.emails) != 0 {
		t.Fatal("locking must not reset attempts")
	}
	if err := mem.SetLocked(ctx, "gus@example.com", false); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if locked, _ := mem.IsLocked(ctx, "gus@example.com"); locked {
		t.Fatal("expected unlocked")
	}
	if len(resetter.emails) != 1 || resetter.emails[0] != "gus@example.com" {
		t.Fatalf("unlock should reset attempts once, got %v", resetter.emails)
	}
	if err := mem.SetLocked(ctx, "ghost@example.com", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisUnlockDeletesAttemptHash(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStoreTest(t)

	if _, err := store.Create(ctx, "hal@example.com", "h", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.HSet("test:att:hal@example.com", "count", "5")
	if err := store.SetLocked(ctx, "hal@example.com", true); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists("test:att:hal@example.com") {
		t.Fatal("locking must keep the attempt hash")
	}
	if err := store.SetLocked(ctx, "hal@example.com", false); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if mr.Exists("test:att:hal@example.com") {
		t.Fatal("unlock must delete the attempt hash")
	}
	if locked, err := store.IsLocked(ctx, "hal@example.com"); err != nil || locked {
		t.Fatalf("expected unlocked, locked=%v err=%v", locked, err)
	}
	if err := store.SetLocked(ctx, "ghost@example.com", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetTwoFactor(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Create(ctx, "ivy@example.com", "h", ""); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.SetTwoFactor(ctx, "ivy@example.com", true, "JBSWY3DPEHPK3PXP"); err != nil {
				t.Fatalf("enable: %v", err)
			}
			u, _, _ := store.FindByEmail(ctx, "ivy@example.com")
			if !u.TwoFactorEnabled || u.TwoFactorSecret != "JBSWY3DPEHPK3PXP" {
				t.Fatalf("unexpected 2fa state: %+v", u)
			}
			if err := store.SetTwoFactor(ctx, "ivy@example.com", false, "ignored"); err != nil {
				t.Fatalf("disable: %v", err)
			}
			u, _, _ = store.FindByEmail(ctx, "ivy@example.com")
			if u.TwoFactorEnabled || u.TwoFactorSecret != "" {
				t.Fatalf("disable must clear the secret: %+v", u)
			}
			if err := store.SetTwoFactor(ctx, "ghost@example.com", true, "x"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestUpdateProfileMovesWebIDIndex(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			u, err := store.Create(ctx, "jo@example.com", "h", "")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			name := "Jo"
			webID := "https://jo.pod/profile/card#me"
			if err := store.UpdateProfile(ctx, u.Email, ProfileUpdate{Name: &name, WebID: &webID}); err != nil {
				t.Fatalf("update: %v", err)
			}
			if _, ok, _ := store.FindByWebID(ctx, u.WebID); ok {
				t.Fatal("old webid must no longer resolve")
			}
			got, ok, err := store.FindByWebID(ctx, webID)
			if err != nil || !ok || got.Name != "Jo" {
				t.Fatalf("new webid lookup: %+v ok=%v err=%v", got, ok, err)
			}
			if err := store.UpdateProfile(ctx, "ghost@example.com", ProfileUpdate{}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestMemoryLockIfReached(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Create(ctx, "kim@example.com", "h", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	locked, now, err := store.LockIfReached(ctx, "kim@example.com", func() bool { return false })
	if err != nil || locked || now {
		t.Fatalf("below threshold: locked=%v now=%v err=%v", locked, now, err)
	}
	locked, now, err = store.LockIfReached(ctx, "kim@example.com", func() bool { return true })
	if err != nil || !locked || !now {
		t.Fatalf("at threshold: locked=%v now=%v err=%v", locked, now, err)
	}
	locked, now, _ = store.LockIfReached(ctx, "kim@example.com", func() bool { return true })
	if !locked || now {
		t.Fatalf("already locked must not report a new transition: locked=%v now=%v", locked, now)
	}

	called := false
	locked, now, _ = store.LockIfReached(ctx, "ghost@example.com", func() bool {
		called = true
		return true
	})
	if locked || now || !called {
		t.Fatalf("unknown email: locked=%v now=%v called=%v", locked, now, called)
	}
}

func TestMemoryConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Create(ctx, "race@example.com", "h", ""); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful create, got %d", wins)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one record, got %d", store.Len())
	}
}

func TestDeriveWebID(t *testing.T) {
	cases := map[string]string{
		"alice@example.com": "https://user.example.org/profile/alice#me",
		"no-at-sign":        "https://user.example.org/profile/no-at-sign#me",
		"a@b@example.com":   "https://user.example.org/profile/a@b#me",
	}
	for email, want := range cases {
		if got := DeriveWebID("", email); got != want {
			t.Fatalf("DeriveWebID(%q) = %q, want %q", email, got, want)
		}
	}
	if got := DeriveWebID("https://id.example/", "x@y"); got != "https://id.example/profile/x#me" {
		t.Fatalf("custom base: %q", got)
	}
}
