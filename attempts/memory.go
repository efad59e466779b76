package attempts

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker keeps attempt records in process memory. Stale records are
// swept lazily, at most once per retention period.
type MemoryTracker struct {
	mu        sync.Mutex
	records   map[string]*Record
	lastSweep time.Time
	locker    Locker
	cfg       Config
	opts      trackerOptions
}

// NewMemoryTracker returns a tracker that locks accounts through locker.
func NewMemoryTracker(locker Locker, cfg Config, opts ...Option) (*MemoryTracker, error) {
	if locker == nil {
		return nil, ErrInvalidConfig
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &MemoryTracker{
		records:   make(map[string]*Record),
		lastSweep: o.now(),
		locker:    locker,
		cfg:       cfg,
		opts:      o,
	}, nil
}

// RecordFailure increments the count and, at the threshold, locks the
// account before the store lock is released.
func (t *MemoryTracker) RecordFailure(ctx context.Context, email string) (Outcome, error) {
	var count int
	locked, lockedNow, err := t.locker.LockIfReached(ctx, email, func() bool {
		count = t.increment(email)
		return count >= t.cfg.Threshold
	})
	if err != nil {
		return Outcome{Count: count}, err
	}
	return Outcome{Count: count, Locked: locked, LockedNow: lockedNow}, nil
}

func (t *MemoryTracker) stale(rec *Record, now time.Time) bool {
	return now.Sub(rec.LastFailureAt) > t.cfg.ttl()
}

// sweep drops stale records. Callers hold t.mu.
func (t *MemoryTracker) sweep(now time.Time) {
	if now.Sub(t.lastSweep) < t.cfg.ttl() {
		return
	}
	for email, rec := range t.records {
		if t.stale(rec, now) {
			delete(t.records, email)
		}
	}
	t.lastSweep = now
}

func (t *MemoryTracker) increment(email string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.opts.now()
	t.sweep(now)
	rec, ok := t.records[email]
	if !ok || t.stale(rec, now) {
		rec = &Record{Email: email}
		t.records[email] = rec
	}
	rec.FailureCount++
	rec.LastFailureAt = now
	return rec.FailureCount
}

func (t *MemoryTracker) Reset(ctx context.Context, email string) error {
	t.mu.Lock()
	delete(t.records, email)
	t.mu.Unlock()
	return nil
}

func (t *MemoryTracker) IsLocked(ctx context.Context, email string) (bool, error) {
	return t.locker.IsLocked(ctx, email)
}

func (t *MemoryTracker) Get(ctx context.Context, email string) (Record, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[email]
	if !ok || t.stale(rec, t.opts.now()) {
		return Record{}, false, nil
	}
	return *rec, true, nil
}
