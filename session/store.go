package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/keys"
	"github.com/redis/go-redis/v9"
)

const maxTouchRetries = 4

// KEYS[1] session key. ARGV[1] user index prefix, ARGV[2] session id.
// The owner is read from the encoded value: version byte, uid length, uid.
const revokeSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local version = string.byte(data, 1)
local user_len = string.byte(data, 2)
if version == 1 and user_len and #data >= 2 + user_len then
  local user_id = string.sub(data, 3, 2 + user_len)
  redis.call("SREM", ARGV[1] .. user_id, ARGV[2])
end
redis.call("DEL", KEYS[1])
return 1
`

// KEYS[1] user index. ARGV[1] session key prefix, ARGV[2] session id to keep.
const revokeAllExceptScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, id in ipairs(ids) do
  if id ~= ARGV[2] then
    removed = removed + redis.call("DEL", ARGV[1] .. id)
    redis.call("SREM", KEYS[1], id)
  end
end
return removed
`

var (
	revokeSessionLua   = redis.NewScript(revokeSessionScript)
	revokeAllExceptLua = redis.NewScript(revokeAllExceptScript)
)

// RedisRegistry stores sessions in Redis. Session values expire at the
// retention horizon and Touch pushes the horizon forward.
type RedisRegistry struct {
	redis  redis.UniversalClient
	layout keys.Layout
	opts   registryOptions
}

// NewRedisRegistry returns a registry writing under prefix.
func NewRedisRegistry(client redis.UniversalClient, prefix string, opts ...Option) *RedisRegistry {
	return &RedisRegistry{
		redis:  client,
		layout: keys.New(prefix),
		opts:   buildOptions(opts),
	}
}

func (r *RedisRegistry) Create(ctx context.Context, userID string, md Metadata) (Session, error) {
	if userID == "" {
		return Session{}, ErrInvalid
	}
	sid, err := internal.NewSessionID()
	if err != nil {
		return Session{}, err
	}
	now := r.opts.now()
	s := Session{
		ID:             sid.String(),
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
		Metadata:       md.normalized(),
	}
	blob, err := Encode(&s)
	if err != nil {
		return Session{}, err
	}

	userKey := r.layout.UserSessions(userID)
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.layout.Session(s.ID), blob, r.opts.retention)
		pipe.SAdd(ctx, userKey, s.ID)
		pipe.Expire(ctx, userKey, r.opts.retention)
		return nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s, nil
}

func (r *RedisRegistry) Get(ctx context.Context, sessionID string) (Session, bool, error) {
	data, err := r.redis.Get(ctx, r.layout.Session(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s, err := Decode(data)
	if err != nil {
		return Session{}, false, nil
	}
	s.ID = sessionID
	if !r.opts.active(s, r.opts.now()) {
		return Session{}, false, nil
	}
	return *s, true, nil
}

// ListActive reads the user's index and every referenced value without
// modifying either.
func (r *RedisRegistry) ListActive(ctx context.Context, userID string) ([]Session, error) {
	all, _, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := r.opts.now()
	out := make([]Session, 0, len(all))
	for i := range all {
		if r.opts.active(&all[i], now) {
			out = append(out, all[i])
		}
	}
	sortByActivity(out)
	return out, nil
}

// load returns decodable sessions and the ids whose values are gone or corrupt.
func (r *RedisRegistry) load(ctx context.Context, userID string) ([]Session, []string, error) {
	ids, err := r.redis.SMembers(ctx, r.layout.UserSessions(userID)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.layout.Session(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sessions := make([]Session, 0, len(ids))
	var dangling []string
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				dangling = append(dangling, ids[i])
				continue
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		s, err := Decode(data)
		if err != nil || s.UserID != userID {
			dangling = append(dangling, ids[i])
			continue
		}
		s.ID = ids[i]
		sessions = append(sessions, *s)
	}
	return sessions, dangling, nil
}

// Touch rewrites the session with a new activity time inside a WATCH
// transaction, so a concurrent Revoke cannot be undone.
func (r *RedisRegistry) Touch(ctx context.Context, sessionID string) error {
	key := r.layout.Session(sessionID)

	for attempt := 0; attempt < maxTouchRetries; attempt++ {
		err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return nil
				}
				return err
			}
			s, err := Decode(data)
			if err != nil {
				return nil
			}
			now := r.opts.now()
			if !r.opts.active(s, now) {
				return nil
			}
			s.LastActivityAt = now
			blob, err := Encode(s)
			if err != nil {
				return err
			}
			userKey := r.layout.UserSessions(s.UserID)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, blob, r.opts.retention)
				pipe.Expire(ctx, userKey, r.opts.retention)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}
	return fmt.Errorf("%w: touch contention", ErrUnavailable)
}

func (r *RedisRegistry) Revoke(ctx context.Context, sessionID string) (bool, error) {
	existed, err := revokeSessionLua.Run(ctx, r.redis,
		[]string{r.layout.Session(sessionID)},
		r.layout.UserSessions(""), sessionID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return existed == 1, nil
}

func (r *RedisRegistry) RevokeAllExcept(ctx context.Context, userID, keepID string) (int, error) {
	removed, err := revokeAllExceptLua.Run(ctx, r.redis,
		[]string{r.layout.UserSessions(userID)},
		r.layout.SessionPrefix(), keepID,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return removed, nil
}

// Prune deletes sessions past retention and drops index entries whose
// values have already expired. It is not atomic with Create; a session
// created meanwhile is simply left alone.
func (r *RedisRegistry) Prune(ctx context.Context, userID string) (int, error) {
	sessions, dangling, err := r.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	now := r.opts.now()
	stale := dangling
	for i := range sessions {
		if !r.opts.active(&sessions[i], now) {
			stale = append(stale, sessions[i].ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	userKey := r.layout.UserSessions(userID)
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range stale {
			pipe.Del(ctx, r.layout.Session(id))
			pipe.SRem(ctx, userKey, id)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return len(stale), nil
}
