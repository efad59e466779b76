package goIdentity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "Correct-Horse-9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testConfig keeps argon2 at its floor so tests hash quickly.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Session.NotifyNewSignIn = false
	return cfg
}

type testEngine struct {
	*Engine
	clock  *fakeClock
	outbox *notify.Recorder
}

type engineOption func(*Builder)

func withRedis(client redis.UniversalClient) engineOption {
	return func(b *Builder) { b.WithRedis(client) }
}

func withAuditSink(sink AuditSink) engineOption {
	return func(b *Builder) { b.WithAuditSink(sink) }
}

func newTestEngine(t *testing.T, cfg Config, opts ...engineOption) *testEngine {
	t.Helper()

	clock := newFakeClock()
	mail := &notify.Recorder{}
	b := New().WithConfig(cfg).WithClock(clock.Now).WithMailer(mail)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return &testEngine{Engine: engine, clock: clock, outbox: mail}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// registerAlice creates the default account and returns its id.
func (e *testEngine) registerAlice(t *testing.T) string {
	t.Helper()

	u, err := e.Register(context.Background(), RegisterRequest{
		Email:    testEmail,
		Password: testPassword,
		Name:     "Alice",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return u.ID
}

func (e *testEngine) login(t *testing.T, email, pw string) LoginResult {
	t.Helper()

	res, err := e.Login(context.Background(), LoginRequest{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return res
}

// drainMail flushes the mail queue. The engine cannot send mail afterwards.
func (e *testEngine) drainMail() {
	e.Engine.mail.Close()
}
