package goIdentity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/goIdentity/notify"
)

func TestAutoLockout_ThresholdTriggersLock(t *testing.T) {
	e := newTestEngine(t, testConfig())
	e.registerAlice(t)
	ctx := context.Background()

	threshold := e.Config().Lockout.Threshold
	for i := 0; i < threshold-1; i++ {
		_, err := e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("threshold attempt: expected ErrAccountLocked, got %v", err)
	}
	locked, err := e.IsLocked(ctx, testEmail)
	if err != nil || !locked {
		t.Fatalf("expected locked account, locked=%v err=%v", locked, err)
	}
}

func TestAutoLockout_LockedUserCannotLogin(t *testing.T) {
	e := newTestEngine(t, testConfig())
	e.registerAlice(t)
	ctx := context.Background()

	for i := 0; i < e.Config().Lockout.Threshold; i++ {
		_, _ = e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"})
	}

	_, err := e.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked for correct password, got %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricLoginLocked]; got != 1 {
		t.Fatalf("expected one locked login, got %d", got)
	}
}

func TestAutoLockout_UnlockAccountRestoresAccess(t *testing.T) {
	e := newTestEngine(t, testConfig())
	e.registerAlice(t)
	ctx := context.Background()

	for i := 0; i < e.Config().Lockout.Threshold; i++ {
		_, _ = e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"})
	}
	if err := e.UnlockAccount(ctx, testEmail); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	// The counter restarts: one more failure must not re-lock.
	_, err := e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials after unlock, got %v", err)
	}
	e.login(t, testEmail, testPassword)
}

func TestAutoLockout_SuccessResetsCounter(t *testing.T) {
	e := newTestEngine(t, testConfig())
	e.registerAlice(t)
	ctx := context.Background()

	threshold := e.Config().Lockout.Threshold
	for round := 0; round < 3; round++ {
		for i := 0; i < threshold-1; i++ {
			_, _ = e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"})
		}
		e.login(t, testEmail, testPassword)
	}
	if locked, _ := e.IsLocked(ctx, testEmail); locked {
		t.Fatalf("interleaved successes must keep the account unlocked")
	}
}

func TestAutoLockout_ManualLock(t *testing.T) {
	e := newTestEngine(t, testConfig())
	e.registerAlice(t)
	ctx := context.Background()

	if err := e.LockAccount(ctx, testEmail); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := e.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if err := e.LockAccount(ctx, "nobody@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAutoLockout_ConcurrentFailuresNotifyOnce(t *testing.T) {
	e := newTestEngine(t, testConfig())
	e.registerAlice(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, _ = e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"})
		}()
	}
	wg.Wait()
	e.drainMail()

	if got := len(e.outbox.OfKind(notify.KindAccountLocked)); got != 1 {
		t.Fatalf("expected exactly one lock notification, got %d", got)
	}
	if got := e.MetricsSnapshot().Counters[MetricAccountLocked]; got != 1 {
		t.Fatalf("expected exactly one lock transition, got %d", got)
	}
}

func TestAutoLockout_FailuresBeforeRegistrationDoNotCount(t *testing.T) {
	backends := []struct {
		name string
		opts func(t *testing.T) []engineOption
	}{
		{"memory", func(*testing.T) []engineOption { return nil }},
		{"redis", func(t *testing.T) []engineOption {
			_, rdb := newTestRedis(t)
			return []engineOption{withRedis(rdb)}
		}},
	}
	for _, bk := range backends {
		t.Run(bk.name, func(t *testing.T) {
			e := newTestEngine(t, testConfig(), bk.opts(t)...)
			ctx := context.Background()
			threshold := e.Config().Lockout.Threshold

			for i := 0; i < threshold; i++ {
				if _, err := e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"}); !errors.Is(err, ErrInvalidCredentials) {
					t.Fatalf("unknown email attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
				}
			}
			e.registerAlice(t)

			if _, err := e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"}); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("first failure after registration: expected ErrInvalidCredentials, got %v", err)
			}
			if locked, _ := e.IsLocked(ctx, testEmail); locked {
				t.Fatalf("pre-registration failures must not lock the new account")
			}

			for i := 1; i < threshold; i++ {
				_, _ = e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"})
			}
			if locked, _ := e.IsLocked(ctx, testEmail); !locked {
				t.Fatalf("expected lock after %d failures on the registered account", threshold)
			}
			_, _ = e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"})
			e.drainMail()

			if got := e.MetricsSnapshot().Counters[MetricAccountLocked]; got != 1 {
				t.Fatalf("expected one lock transition, got %d", got)
			}
			if got := len(e.outbox.OfKind(notify.KindAccountLocked)); got != 1 {
				t.Fatalf("expected one lock notification, got %d", got)
			}
		})
	}
}
