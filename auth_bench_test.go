package goIdentity

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkEngine(b *testing.B, useRedis bool) (*Engine, string) {
	b.Helper()

	builder := New().WithConfig(testConfig())
	if useRedis {
		mr, err := miniredis.Run()
		if err != nil {
			b.Fatalf("miniredis: %v", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		b.Cleanup(func() {
			_ = rdb.Close()
			mr.Close()
		})
		builder.WithRedis(rdb)
	}
	engine, err := builder.Build()
	if err != nil {
		b.Fatalf("build: %v", err)
	}
	b.Cleanup(engine.Close)

	if _, err := engine.Register(context.Background(), RegisterRequest{Email: testEmail, Password: testPassword}); err != nil {
		b.Fatalf("register: %v", err)
	}
	res, err := engine.Login(context.Background(), LoginRequest{Email: testEmail, Password: testPassword})
	if err != nil {
		b.Fatalf("login: %v", err)
	}
	return engine, res.AccessToken
}

func BenchmarkAuthenticateMemory(b *testing.B) {
	engine, access := newBenchmarkEngine(b, false)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authenticate(context.Background(), access); err != nil {
			b.Fatalf("authenticate: %v", err)
		}
	}
}

func BenchmarkAuthenticateRedis(b *testing.B) {
	engine, access := newBenchmarkEngine(b, true)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authenticate(context.Background(), access); err != nil {
			b.Fatalf("authenticate: %v", err)
		}
	}
}

func BenchmarkLogin(b *testing.B) {
	engine, _ := newBenchmarkEngine(b, false)
	req := LoginRequest{Email: testEmail, Password: testPassword}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Login(context.Background(), req); err != nil {
			b.Fatalf("login: %v", err)
		}
	}
}

func BenchmarkLoginUnknownEmail(b *testing.B) {
	engine, _ := newBenchmarkEngine(b, false)
	req := LoginRequest{Email: "ghost@example.com", Password: testPassword}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.Login(context.Background(), req)
	}
}
