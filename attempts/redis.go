package attempts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goIdentity/internal/keys"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] attempt hash, KEYS[2] user hash.
// ARGV[1] threshold, ARGV[2] now (ms), ARGV[3] window (ms, 0 = none),
// ARGV[4] record ttl (ms).
// Replies {count, locked, locked_now}.
const recordFailureScript = `
local now = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
if window > 0 then
  local last = tonumber(redis.call("HGET", KEYS[1], "last") or "0")
  if last > 0 and now - last > window then
    redis.call("DEL", KEYS[1])
  end
end
local count = redis.call("HINCRBY", KEYS[1], "count", 1)
redis.call("HSET", KEYS[1], "last", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
local locked = 0
local locked_now = 0
if redis.call("EXISTS", KEYS[2]) == 1 then
  if redis.call("HGET", KEYS[2], "locked") == "1" then
    locked = 1
  elseif count >= tonumber(ARGV[1]) then
    redis.call("HSET", KEYS[2], "locked", "1")
    locked = 1
    locked_now = 1
  end
end
return {count, locked, locked_now}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// RedisTracker keeps attempt records in Redis next to the user hashes
// written by identity.RedisStore. Both must share the key prefix.
type RedisTracker struct {
	redis  redis.UniversalClient
	layout keys.Layout
	cfg    Config
	opts   trackerOptions
}

// NewRedisTracker returns a tracker writing under prefix.
func NewRedisTracker(client redis.UniversalClient, prefix string, cfg Config, opts ...Option) (*RedisTracker, error) {
	if client == nil {
		return nil, ErrInvalidConfig
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &RedisTracker{
		redis:  client,
		layout: keys.New(prefix),
		cfg:    cfg,
		opts:   buildOptions(opts),
	}, nil
}

func (t *RedisTracker) RecordFailure(ctx context.Context, email string) (Outcome, error) {
	res, err := recordFailureLua.Run(ctx, t.redis,
		[]string{t.layout.Attempts(email), t.layout.User(email)},
		t.cfg.Threshold,
		t.opts.now().UnixMilli(),
		t.cfg.Window.Milliseconds(),
		t.cfg.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) != 3 {
		return Outcome{}, fmt.Errorf("%w: unexpected script reply", ErrUnavailable)
	}
	return Outcome{Count: int(res[0]), Locked: res[1] == 1, LockedNow: res[2] == 1}, nil
}

func (t *RedisTracker) Reset(ctx context.Context, email string) error {
	if err := t.redis.Del(ctx, t.layout.Attempts(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (t *RedisTracker) IsLocked(ctx context.Context, email string) (bool, error) {
	v, err := t.redis.HGet(ctx, t.layout.User(email), keys.FieldLocked).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v == "1", nil
}

func (t *RedisTracker) Get(ctx context.Context, email string) (Record, bool, error) {
	fields, err := t.redis.HGetAll(ctx, t.layout.Attempts(email)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return Record{}, false, nil
	}

	count, _ := strconv.Atoi(fields[keys.FieldFailureCount])
	rec := Record{Email: email, FailureCount: count}
	if ms, err := strconv.ParseInt(fields[keys.FieldLastFailureAt], 10, 64); err == nil && ms > 0 {
		rec.LastFailureAt = time.UnixMilli(ms)
	}
	return rec, true, nil
}
