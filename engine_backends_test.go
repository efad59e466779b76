package goIdentity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MrEthical07/goIdentity/attempts"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/sqlstore"
)

// exerciseBackend runs the core account flows against whatever backends
// e was built with.
func exerciseBackend(t *testing.T, e *testEngine) {
	t.Helper()
	ctx := context.Background()

	uid := e.registerAlice(t)
	if _, err := e.Register(ctx, RegisterRequest{Email: testEmail, Password: testPassword}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	res := e.login(t, testEmail, testPassword)
	if _, err := e.Authenticate(ctx, res.AccessToken); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	for i := 0; i < e.Config().Lockout.Threshold; i++ {
		_, _ = e.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-1"})
	}
	if _, err := e.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	token := requestResetToken(t, e)
	if err := e.ConfirmPasswordReset(ctx, token, newPassword); err != nil {
		t.Fatalf("confirm reset: %v", err)
	}
	if _, err := e.Authenticate(ctx, res.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected reset to end sessions, got %v", err)
	}
	e.login(t, testEmail, newPassword)

	if _, err := e.GrantConsent(ctx, uid, testClient, []string{"openid", "webid"}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	d, err := e.ConsentDecision(ctx, uid, testClient, []string{"openid", "webid"})
	if err != nil || d.Prompt {
		t.Fatalf("expected stored consent, got %+v err=%v", d, err)
	}
}

func TestEngineRedisBackend(t *testing.T) {
	_, rdb := newTestRedis(t)
	e := newTestEngine(t, testConfig(), withRedis(rdb))
	exerciseBackend(t, e)

	keys, err := rdb.Keys(context.Background(), e.Config().Storage.RedisPrefix+":*").Result()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) == 0 {
		t.Fatalf("expected state under the configured prefix")
	}
}

func TestEngineRedisUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	e := newTestEngine(t, testConfig(), withRedis(rdb))
	e.registerAlice(t)
	mr.Close()

	_, err := e.Login(context.Background(), LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestEngineSQLBackend(t *testing.T) {
	db, err := sqlstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	e := newTestEngine(t, testConfig(), func(b *Builder) { b.WithSQL(db) })
	exerciseBackend(t, e)
}

func TestEngineSQLWithRedisEphemeralState(t *testing.T) {
	db, err := sqlstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	_, rdb := newTestRedis(t)

	e := newTestEngine(t, testConfig(), withRedis(rdb), func(b *Builder) { b.WithSQL(db) })
	exerciseBackend(t, e)
}

func TestEngineSQLDerivesWebIDFromConfiguredBase(t *testing.T) {
	db, err := sqlstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig()
	cfg.Identity.WebIDBase = "https://pods.example.org/"
	e := newTestEngine(t, cfg, func(b *Builder) { b.WithSQL(db) })

	u, err := e.Register(context.Background(), RegisterRequest{Email: testEmail, Password: testPassword})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if want := "https://pods.example.org/profile/alice#me"; u.WebID != want {
		t.Fatalf("webid = %q, want %q", u.WebID, want)
	}
}

func TestEngineSQLKeepsAttemptsBesideTheLockColumn(t *testing.T) {
	db, err := sqlstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	_, rdb := newTestRedis(t)

	e := newTestEngine(t, testConfig(), withRedis(rdb), func(b *Builder) { b.WithSQL(db) })
	if _, ok := e.Engine.attempts.(*attempts.MemoryTracker); !ok {
		t.Fatalf("sql mode attempt tracker = %T, want *attempts.MemoryTracker", e.Engine.attempts)
	}
	if _, ok := e.Engine.sessions.(*session.RedisRegistry); !ok {
		t.Fatalf("sql mode session registry = %T, want *session.RedisRegistry", e.Engine.sessions)
	}
}
