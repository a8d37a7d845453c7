// Package guard limits how conversions are admitted: a per-client rate limit
// and at most one writer per part file.
package guard

import (
	"sync"
	"time"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
)

// GuardConfig holds rate limits.
type GuardConfig struct {
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
}

// Guard admits conversion requests.
type Guard struct {
	Config GuardConfig

	mu         sync.Mutex
	rateCounts map[string]*rateBucket
	busy       map[string]struct{}
	now        func() time.Time
}

type rateBucket struct {
	count       int
	windowStart int64
}

// NewGuard creates a Guard with the given limits.
func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{
		Config:     cfg,
		rateCounts: make(map[string]*rateBucket),
		busy:       make(map[string]struct{}),
		now:        time.Now,
	}
}

// Admit checks the rate limit for client and takes the writer slot for
// file. The returned release must be called when the run ends.
func (g *Guard) Admit(client, file string) (release func(), err error) {
	if err := g.CheckRateLimit(client); err != nil {
		return nil, err
	}
	return g.Acquire(file)
}

// CheckRateLimit enforces a per-client sliding window rate limit.
// The window is 60 seconds. A non-positive limit disables the check.
func (g *Guard) CheckRateLimit(client string) error {
	if g.Config.RateLimitPerMinute <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().Unix()
	bucket, ok := g.rateCounts[client]
	if !ok {
		g.rateCounts[client] = &rateBucket{count: 1, windowStart: now}
		return nil
	}

	if now-bucket.windowStart > 60 {
		bucket.count = 1
		bucket.windowStart = now
		return nil
	}

	if bucket.count >= g.Config.RateLimitPerMinute {
		return domain.ErrRateLimitExceeded
	}

	bucket.count++
	return nil
}

// Acquire takes the single writer slot for file. An empty file name is
// never contended.
func (g *Guard) Acquire(file string) (release func(), err error) {
	if file == "" {
		return func() {}, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, taken := g.busy[file]; taken {
		return nil, domain.ErrDocumentBusy
	}
	g.busy[file] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.busy, file)
			g.mu.Unlock()
		})
	}, nil
}
