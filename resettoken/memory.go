package resettoken

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
)

type memoryEntry struct {
	email     string
	expiresAt time.Time
}

// MemoryVault keeps token digests in process memory.
type MemoryVault struct {
	mu     sync.Mutex
	tokens map[[32]byte]memoryEntry
	opts   vaultOptions
}

// NewMemoryVault returns an empty vault.
func NewMemoryVault(opts ...Option) *MemoryVault {
	return &MemoryVault{
		tokens: make(map[[32]byte]memoryEntry),
		opts:   buildOptions(opts),
	}
}

func (v *MemoryVault) Issue(ctx context.Context, email string, ttl time.Duration) (string, error) {
	token, err := internal.NewResetToken()
	if err != nil {
		return "", err
	}
	digest, _ := internal.ResetTokenDigest(token)

	v.mu.Lock()
	v.tokens[digest] = memoryEntry{
		email:     email,
		expiresAt: v.opts.now().Add(normalizeTTL(ttl)),
	}
	v.mu.Unlock()

	return token, nil
}

// Redeem consumes the token. Lookup and delete happen under one lock.
func (v *MemoryVault) Redeem(ctx context.Context, token string) (Redemption, error) {
	return v.present(token, true), nil
}

// Inspect reports the token status without consuming a live token.
func (v *MemoryVault) Inspect(ctx context.Context, token string) (Redemption, error) {
	return v.present(token, false), nil
}

func (v *MemoryVault) present(token string, consume bool) Redemption {
	digest, ok := internal.ResetTokenDigest(token)
	if !ok {
		return Redemption{Status: StatusInvalid}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.tokens[digest]
	if !ok {
		return Redemption{Status: StatusInvalid}
	}
	if !v.opts.now().Before(entry.expiresAt) {
		delete(v.tokens, digest)
		return Redemption{Status: StatusExpired}
	}
	if consume {
		delete(v.tokens, digest)
	}
	return Redemption{Email: entry.email, Status: StatusValid}
}

// Len reports the number of stored tokens, expired ones included.
func (v *MemoryVault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.tokens)
}
