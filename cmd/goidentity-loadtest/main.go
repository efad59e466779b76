// Command goidentity-loadtest drives concurrent account-security flows
// against an Engine and checks the invariants that must survive
// contention: one lock transition per account, one winner per reset token
// and a single surviving session after logging out the others.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(args, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	rdb, cleanup, err := openRedis(cfg, logger)
	if err != nil {
		logger.Error("redis setup failed", zap.Error(err))
		return 1
	}
	defer cleanup()

	box := newMailbox()
	engine, err := buildEngine(cfg, rdb, box, logger)
	if err != nil {
		logger.Error("engine build failed", zap.Error(err))
		return 1
	}
	defer engine.Close()

	r := &runner{
		engine: engine,
		box:    box,
		cfg:    cfg,
		runID:  uuid.NewString()[:8],
		logger: logger,
		bad:    &violations{},
	}

	phases := []struct {
		name string
		fn   func(context.Context) (phaseStats, error)
	}{
		{"lockout", r.lockout},
		{"reset-race", r.resetRace},
		{"session-churn", r.churn},
	}
	results := make([]phaseStats, len(phases))
	for i, p := range phases {
		stats, err := p.fn(ctx)
		if err != nil {
			logger.Error("scenario aborted", zap.String("scenario", p.name), zap.Error(err))
			return 1
		}
		results[i] = stats
	}

	fmt.Fprintln(stdout, "---- results ----")
	for i, p := range phases {
		printStats(stdout, p.name, results[i])
	}
	mail := engine.MailStats()
	fmt.Fprintf(stdout, "mail: sent=%d failed=%d dropped=%d\n", mail.Sent, mail.Failed, mail.Dropped)

	bad := r.bad.all()
	if len(bad) == 0 {
		fmt.Fprintln(stdout, "invariants: ok")
		return 0
	}
	fmt.Fprintf(stdout, "invariants: %d violations\n", len(bad))
	for _, v := range bad {
		fmt.Fprintln(stdout, "  "+v)
	}
	return 1
}

// openRedis connects to cfg.RedisAddr or starts an embedded miniredis. A
// nil client means in-memory backends.
func openRedis(cfg config, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if cfg.MemoryBackends {
		logger.Info("using in-memory backends")
		return nil, func() {}, nil
	}

	addr := cfg.RedisAddr
	var mr *miniredis.Miniredis
	if addr == "" {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		logger.Info("using embedded miniredis", zap.String("addr", addr))
	} else {
		logger.Info("using redis", zap.String("addr", addr))
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	cleanup := func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}
	return client, cleanup, nil
}

func buildEngine(cfg config, rdb redis.UniversalClient, box *mailbox, logger *zap.Logger) (*goIdentity.Engine, error) {
	c := goIdentity.DefaultConfig()
	c.Storage.RedisPrefix = cfg.RedisPrefix
	// The run measures state handling, not the KDF.
	c.Password.Memory = 16 * 1024
	c.Password.Time = 1
	c.Password.Parallelism = 1
	c.Registration.ThrottleLimit = 0
	c.Session.NotifyNewSignIn = false

	b := goIdentity.New().
		WithConfig(c).
		WithLogger(logger).
		WithMailer(box)
	if rdb != nil {
		b.WithRedis(rdb)
	}
	return b.Build()
}
