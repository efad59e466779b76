package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPrefix     string        `env:"LOADTEST_PREFIX" envDefault:"goidentity-loadtest"`
	Workers         int           `env:"LOADTEST_WORKERS" envDefault:"32"`
	Duration        time.Duration `env:"LOADTEST_DURATION" envDefault:"10s"`
	LockoutAttempts int           `env:"LOADTEST_LOCKOUT_ATTEMPTS" envDefault:"200"`
	ResetRounds     int           `env:"LOADTEST_RESET_ROUNDS" envDefault:"20"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	MemoryBackends  bool          `env:"LOADTEST_MEMORY"`
}

// loadConfig reads the environment first; flags override it.
func loadConfig(args []string, stderr io.Writer) (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("goidentity-loadtest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address; empty starts an embedded miniredis")
	fs.StringVar(&cfg.RedisPrefix, "prefix", cfg.RedisPrefix, "redis key prefix")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent workers per scenario")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "length of the session churn scenario")
	fs.IntVar(&cfg.LockoutAttempts, "lockout-attempts", cfg.LockoutAttempts, "failed logins fired at one account")
	fs.IntVar(&cfg.ResetRounds, "reset-rounds", cfg.ResetRounds, "reset tokens raced by all workers")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&cfg.MemoryBackends, "memory", cfg.MemoryBackends, "use in-memory backends instead of redis")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if cfg.Workers <= 0 || cfg.Duration <= 0 || cfg.LockoutAttempts <= 0 || cfg.ResetRounds <= 0 {
		return config{}, errors.New("workers, duration, lockout-attempts and reset-rounds must be > 0")
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
