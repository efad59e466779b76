package resettoken

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/keys"
	"github.com/redis/go-redis/v9"
)

// Redis drops abandoned tokens this long after they expire. Presentation
// still decides expiry from the stored timestamp.
const purgeGrace = time.Hour

// ARGV[1] now (ms), ARGV[2] consume flag.
const presentTokenScript = `
local email = redis.call("HGET", KEYS[1], "email")
if not email then
  return {0, ""}
end
local exp = tonumber(redis.call("HGET", KEYS[1], "exp") or "0")
if exp <= tonumber(ARGV[1]) then
  redis.call("DEL", KEYS[1])
  return {1, ""}
end
if ARGV[2] == "1" then
  redis.call("DEL", KEYS[1])
end
return {2, email}
`

var presentTokenLua = redis.NewScript(presentTokenScript)

// RedisVault stores token digests as Redis hashes.
type RedisVault struct {
	redis  redis.UniversalClient
	layout keys.Layout
	opts   vaultOptions
}

// NewRedisVault returns a vault writing under prefix.
func NewRedisVault(client redis.UniversalClient, prefix string, opts ...Option) *RedisVault {
	return &RedisVault{
		redis:  client,
		layout: keys.New(prefix),
		opts:   buildOptions(opts),
	}
}

func (v *RedisVault) key(digest [32]byte) string {
	return v.layout.ResetToken(hex.EncodeToString(digest[:]))
}

func (v *RedisVault) Issue(ctx context.Context, email string, ttl time.Duration) (string, error) {
	token, err := internal.NewResetToken()
	if err != nil {
		return "", err
	}
	digest, _ := internal.ResetTokenDigest(token)
	ttl = normalizeTTL(ttl)
	expiresAt := v.opts.now().Add(ttl)
	key := v.key(digest)

	_, err = v.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "email", email, "exp", expiresAt.UnixMilli())
		pipe.PExpire(ctx, key, ttl+purgeGrace)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return token, nil
}

// Redeem consumes the token atomically.
func (v *RedisVault) Redeem(ctx context.Context, token string) (Redemption, error) {
	return v.present(ctx, token, true)
}

// Inspect reports the token status without consuming a live token.
func (v *RedisVault) Inspect(ctx context.Context, token string) (Redemption, error) {
	return v.present(ctx, token, false)
}

func (v *RedisVault) present(ctx context.Context, token string, consume bool) (Redemption, error) {
	digest, ok := internal.ResetTokenDigest(token)
	if !ok {
		return Redemption{Status: StatusInvalid}, nil
	}

	flag := "0"
	if consume {
		flag = "1"
	}
	res, err := presentTokenLua.Run(ctx, v.redis, []string{v.key(digest)},
		v.opts.now().UnixMilli(), flag,
	).Slice()
	if err != nil {
		return Redemption{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) != 2 {
		return Redemption{}, fmt.Errorf("%w: unexpected script reply", ErrUnavailable)
	}

	code, _ := res[0].(int64)
	switch code {
	case 2:
		email, _ := res[1].(string)
		return Redemption{Email: email, Status: StatusValid}, nil
	case 1:
		return Redemption{Status: StatusExpired}, nil
	default:
		return Redemption{Status: StatusInvalid}, nil
	}
}
