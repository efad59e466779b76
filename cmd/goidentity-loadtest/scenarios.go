package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/notify"
	"go.uber.org/zap"
)

const (
	loadPassword  = "Load-Test-Pass-1"
	resetPassword = "Load-Test-Pass-2"
	wrongPassword = "Not-The-Password-9"
	mailWait      = 5 * time.Second
)

// mailbox is the Mailer the engine delivers to during a run.
type mailbox struct {
	mu     sync.Mutex
	tokens map[string]string
	locked map[string]int
}

func newMailbox() *mailbox {
	return &mailbox{tokens: make(map[string]string), locked: make(map[string]int)}
}

func (m *mailbox) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch msg.Kind {
	case notify.KindPasswordReset:
		m.tokens[msg.To] = msg.Data["token"]
	case notify.KindAccountLocked:
		m.locked[msg.To]++
	}
	return nil
}

// waitFor polls until read reports ok or the deadline passes.
func (m *mailbox) waitFor(ctx context.Context, read func() bool) bool {
	deadline := time.Now().Add(mailWait)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		ok := read()
		m.mu.Unlock()
		if ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(5 * time.Millisecond):
		}
	}
	return false
}

func (m *mailbox) token(ctx context.Context, email string) (string, bool) {
	var tok string
	ok := m.waitFor(ctx, func() bool {
		tok = m.tokens[email]
		return tok != ""
	})
	return tok, ok
}

func (m *mailbox) lockMails(ctx context.Context, email string) int {
	var n int
	m.waitFor(ctx, func() bool {
		n = m.locked[email]
		return n > 0
	})
	return n
}

// violations collects broken invariants across workers.
type violations struct {
	mu   sync.Mutex
	list []string
}

func (v *violations) addf(format string, args ...any) {
	v.mu.Lock()
	v.list = append(v.list, fmt.Sprintf(format, args...))
	v.mu.Unlock()
}

func (v *violations) all() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.list...)
}

type runner struct {
	engine *goIdentity.Engine
	box    *mailbox
	cfg    config
	runID  string
	logger *zap.Logger
	bad    *violations
}

func (r *runner) email(kind string, n int) string {
	return fmt.Sprintf("%s-%s-%d@loadtest.example", r.runID, kind, n)
}

func (r *runner) register(ctx context.Context, email string) (string, error) {
	u, err := r.engine.Register(ctx, goIdentity.RegisterRequest{Email: email, Password: loadPassword})
	if err != nil {
		return "", fmt.Errorf("register %s: %w", email, err)
	}
	return u.ID, nil
}

func counterDelta(before, after goIdentity.MetricsSnapshot, id goIdentity.MetricID) uint64 {
	return after.Counters[id] - before.Counters[id]
}

// lockout fires failed logins at one account from every worker. Exactly
// one attempt may observe the lock transition.
func (r *runner) lockout(ctx context.Context) (phaseStats, error) {
	email := r.email("lockout", 0)
	if _, err := r.register(ctx, email); err != nil {
		return phaseStats{}, err
	}

	before := r.engine.MetricsSnapshot()
	var (
		rec    recorder
		cursor int64
		wg     sync.WaitGroup
	)
	start := time.Now()
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for atomic.AddInt64(&cursor, 1) <= int64(r.cfg.LockoutAttempts) {
				t0 := time.Now()
				_, err := r.engine.Login(ctx, goIdentity.LoginRequest{Email: email, Password: wrongPassword})
				if errors.Is(err, goIdentity.ErrInvalidCredentials) || errors.Is(err, goIdentity.ErrAccountLocked) {
					err = nil
				} else if err == nil {
					err = errors.New("wrong password accepted")
					r.bad.addf("lockout: wrong password accepted")
				}
				rec.observe(time.Since(t0), err)
			}
		}()
	}
	wg.Wait()
	stats := rec.stats(time.Since(start))
	after := r.engine.MetricsSnapshot()

	threshold := r.engine.Config().Lockout.Threshold
	wantLocks := uint64(0)
	if r.cfg.LockoutAttempts >= threshold {
		wantLocks = 1
	}
	if got := counterDelta(before, after, goIdentity.MetricAccountLocked); got != wantLocks {
		r.bad.addf("lockout: %d lock transitions, want %d", got, wantLocks)
	}
	attempts := counterDelta(before, after, goIdentity.MetricLoginFailure) +
		counterDelta(before, after, goIdentity.MetricLoginLocked)
	if attempts != uint64(r.cfg.LockoutAttempts) {
		r.bad.addf("lockout: %d attempts accounted, want %d", attempts, r.cfg.LockoutAttempts)
	}

	if wantLocks == 1 {
		locked, err := r.engine.IsLocked(ctx, email)
		if err != nil {
			return stats, fmt.Errorf("is locked: %w", err)
		}
		if !locked {
			r.bad.addf("lockout: account not locked after %d failures", r.cfg.LockoutAttempts)
		}
		if _, err := r.engine.Login(ctx, goIdentity.LoginRequest{Email: email, Password: loadPassword}); !errors.Is(err, goIdentity.ErrAccountLocked) {
			r.bad.addf("lockout: correct password on locked account returned %v", err)
		}
		if r.engine.Config().Lockout.NotifyOnLock {
			if n := r.box.lockMails(ctx, email); n != 1 {
				r.bad.addf("lockout: %d lock notifications, want 1", n)
			}
		}
	}

	r.logger.Info("lockout scenario finished",
		zap.Int("attempts", stats.ops),
		zap.Uint64("lock_transitions", counterDelta(before, after, goIdentity.MetricAccountLocked)),
	)
	return stats, nil
}

// resetRace redeems each issued token from every worker at once. Exactly
// one redemption per token may succeed.
func (r *runner) resetRace(ctx context.Context) (phaseStats, error) {
	var rec recorder
	start := time.Now()
	for round := 0; round < r.cfg.ResetRounds; round++ {
		email := r.email("reset", round)
		if _, err := r.register(ctx, email); err != nil {
			return phaseStats{}, err
		}
		if err := r.engine.RequestPasswordReset(ctx, email); err != nil {
			return phaseStats{}, fmt.Errorf("request reset %s: %w", email, err)
		}
		token, ok := r.box.token(ctx, email)
		if !ok {
			r.bad.addf("reset: no token delivered for %s", email)
			continue
		}

		var (
			wins int64
			wg   sync.WaitGroup
			gate = make(chan struct{})
		)
		for w := 0; w < r.cfg.Workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				t0 := time.Now()
				err := r.engine.ConfirmPasswordReset(ctx, token, resetPassword)
				switch {
				case err == nil:
					atomic.AddInt64(&wins, 1)
				case errors.Is(err, goIdentity.ErrPasswordResetInvalid):
					err = nil
				}
				rec.observe(time.Since(t0), err)
			}()
		}
		close(gate)
		wg.Wait()

		if wins != 1 {
			r.bad.addf("reset: %d redemptions of one token succeeded", wins)
		}
		if _, err := r.engine.Login(ctx, goIdentity.LoginRequest{Email: email, Password: resetPassword}); err != nil {
			r.bad.addf("reset: login with the new password failed: %v", err)
		}
	}
	stats := rec.stats(time.Since(start))
	r.logger.Info("reset scenario finished", zap.Int("rounds", r.cfg.ResetRounds), zap.Int("redemptions", stats.ops))
	return stats, nil
}

// churn has every worker log in repeatedly on its own account and
// periodically end all other sessions.
func (r *runner) churn(ctx context.Context) (phaseStats, error) {
	users := make([]string, r.cfg.Workers)
	for w := range users {
		if _, err := r.register(ctx, r.email("churn", w)); err != nil {
			return phaseStats{}, err
		}
		users[w] = r.email("churn", w)
	}

	var (
		rec recorder
		wg  sync.WaitGroup
	)
	deadline := time.Now().Add(r.cfg.Duration)
	start := time.Now()
	for w := range users {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			for i := 0; time.Now().Before(deadline) && ctx.Err() == nil; i++ {
				t0 := time.Now()
				res, err := r.engine.Login(ctx, goIdentity.LoginRequest{Email: email, Password: loadPassword})
				if err == nil {
					_, err = r.engine.Authenticate(ctx, res.AccessToken)
				}
				if err == nil && i%4 == 3 {
					err = r.logoutOthers(ctx, res)
				}
				rec.observe(time.Since(t0), err)
			}
		}(users[w])
	}
	wg.Wait()
	stats := rec.stats(time.Since(start))
	r.logger.Info("session churn scenario finished", zap.Int("operations", stats.ops))
	return stats, nil
}

func (r *runner) logoutOthers(ctx context.Context, res goIdentity.LoginResult) error {
	if _, err := r.engine.LogoutOtherSessions(ctx, res.UserID, res.SessionID); err != nil {
		return err
	}
	sessions, err := r.engine.ListSessions(ctx, res.UserID)
	if err != nil {
		return err
	}
	if len(sessions) != 1 || sessions[0].ID != res.SessionID {
		r.bad.addf("churn: %d sessions left after logging out others", len(sessions))
	}
	return nil
}
