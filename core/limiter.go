package core

import (
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ModelLimiter enforces a maximum number of allowed model calls per agent.
type ModelLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewModelLimiter creates a new limiter with a max number of calls.
// If max == 0, unlimited calls are allowed.
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: max}
}

// Increment increases the call counter and returns an error if the limit is exceeded.
func (ml *ModelLimiter) Increment() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.count++
	if ml.max > 0 && ml.count > ml.max {
		return fmt.Errorf("%w: %d", ErrMaxModelCalls, ml.max)
	}

	return nil
}

// Count returns the current number of calls made.
func (ml *ModelLimiter) Count() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	return ml.count
}

// Remaining returns how many calls are left before hitting the limit.
func (ml *ModelLimiter) Remaining() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.max == 0 {
		return -1 // unlimited
	}

	return ml.max - ml.count
}

// SpawnLimits bounds the sub-agent tree of one run.
type SpawnLimits struct {
	// MaxDepth is the deepest allowed sub-agent level (top-level agent = 0).
	MaxDepth int `yaml:"max_depth"`
	// MaxConcurrent is the number of sub-agents that may be alive at once.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// DefaultSpawnLimits is used when a run does not configure its own bounds.
var DefaultSpawnLimits = SpawnLimits{MaxDepth: 3, MaxConcurrent: 8}

// SpawnLimiter fails closed once a spawn would exceed its SpawnLimits. A
// single limiter is shared by every agent of a run.
type SpawnLimiter struct {
	limits SpawnLimits
	sem    *semaphore.Weighted

	mu    sync.Mutex
	live  int
	total int
}

// NewSpawnLimiter creates a limiter. Non-positive fields fall back to DefaultSpawnLimits.
func NewSpawnLimiter(limits SpawnLimits) *SpawnLimiter {
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultSpawnLimits.MaxDepth
	}

	if limits.MaxConcurrent <= 0 {
		limits.MaxConcurrent = DefaultSpawnLimits.MaxConcurrent
	}

	return &SpawnLimiter{limits: limits, sem: semaphore.NewWeighted(int64(limits.MaxConcurrent))}
}

// Acquire reserves a slot for a child at depth. The returned release must be
// called once the child reaches its end.
func (l *SpawnLimiter) Acquire(depth int) (func(), error) {
	if depth > l.limits.MaxDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds max depth %d", ErrSpawnLimit, depth, l.limits.MaxDepth)
	}

	if !l.sem.TryAcquire(1) {
		return nil, fmt.Errorf("%w: more than %d live sub-agents", ErrSpawnLimit, l.limits.MaxConcurrent)
	}

	l.mu.Lock()
	l.live++
	l.total++
	l.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.live--
			l.mu.Unlock()
			l.sem.Release(1)
		})
	}, nil
}

// Live returns the number of sub-agents currently running.
func (l *SpawnLimiter) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.live
}

// Total returns the number of sub-agents spawned so far.
func (l *SpawnLimiter) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.total
}

// Limits returns the configured bounds.
func (l *SpawnLimiter) Limits() SpawnLimits { return l.limits }
