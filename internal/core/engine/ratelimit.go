package engine

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/formscout/formscout/internal/core"
)

// refillInterval is the window over which a bucket regains its full capacity.
const refillInterval = time.Minute

// RateLimiter enforces an independent per-minute budget for each
// organization. Each organization owns one rate.Limiter whose burst is the
// per-minute capacity and whose rate refills that capacity once a minute.
type RateLimiter struct {
	// Clock drives every limiter call; defaults to time.Now.
	Clock func() time.Time

	mu        sync.RWMutex
	buckets   map[string]*bucket
	limits    map[string]int
	overrides map[string]int
	margin    float64
}

type bucket struct {
	mu         sync.Mutex
	capacity   int
	limiter    *rate.Limiter
	lastRefill time.Time
}

func newBucket(capacity int, now time.Time) *bucket {
	return &bucket{
		capacity:   capacity,
		limiter:    rate.NewLimiter(refillRate(capacity), capacity),
		lastRefill: now,
	}
}

// refillRate converts a per-minute budget to the limiter's per-second rate.
func refillRate(capacity int) rate.Limit {
	return rate.Limit(float64(capacity) / refillInterval.Seconds())
}

// NewRateLimiter creates a limiter with one full bucket per source.
func NewRateLimiter(sources []core.FormSource) *RateLimiter {
	r := &RateLimiter{}
	for _, source := range sources {
		r.Register(source.Organization, source.RateLimitPerMinute)
	}
	return r
}

// Register installs (or replaces) a full bucket for an organization.
func (r *RateLimiter) Register(organization string, perMinute int) {
	if r == nil || organization == "" {
		return
	}
	if perMinute <= 0 {
		perMinute = core.DefaultRateLimitPerMinute
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buckets == nil {
		r.buckets = make(map[string]*bucket)
		r.limits = make(map[string]int)
	}
	r.limits[organization] = perMinute
	r.buckets[organization] = newBucket(r.effectiveCapacityLocked(organization), r.now())
}

// TryAcquire removes one token from the organization's bucket. It returns
// false, leaving the bucket untouched, when less than one token is available.
func (r *RateLimiter) TryAcquire(organization string) bool {
	if r == nil {
		return true
	}
	b := r.bucketFor(organization)
	now := r.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.limiter.AllowN(now, 1) {
		return false
	}
	if now.After(b.lastRefill) {
		b.lastRefill = now
	}
	return true
}

// Wait returns how long until the organization's bucket holds a full token.
func (r *RateLimiter) Wait(organization string) time.Duration {
	if r == nil {
		return 0
	}
	b := r.bucketFor(organization)

	b.mu.Lock()
	defer b.mu.Unlock()

	tokens := b.limiter.TokensAt(r.now())
	if tokens >= 1 {
		return 0
	}
	perSecond := float64(b.limiter.Limit())
	if perSecond <= 0 {
		return refillInterval
	}
	seconds := (1 - tokens) / perSecond
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
}

// Reset refills an organization's bucket. It reports whether a bucket existed.
func (r *RateLimiter) Reset(organization string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	b, ok := r.buckets[organization]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	now := r.now()
	b.mu.Lock()
	b.limiter = rate.NewLimiter(refillRate(b.capacity), b.capacity)
	b.lastRefill = now
	b.mu.Unlock()
	return true
}

// ApplyOverrides replaces per-organization budgets (requests per minute).
// Keys may be the exact organization name or its slug.
func (r *RateLimiter) ApplyOverrides(overrides map[string]int) {
	if r == nil || len(overrides) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.overrides == nil {
		r.overrides = make(map[string]int, len(overrides))
	}
	for key, value := range overrides {
		key = strings.TrimSpace(key)
		if key == "" || value <= 0 {
			continue
		}
		r.overrides[core.SourceSlug(key)] = value
	}
	r.resizeLocked()
}

// ApplySafetyMargin scales every budget by a ratio in (0, 1].
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil || margin <= 0 || margin > 1 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.margin = margin
	r.resizeLocked()
}

// Snapshot reports the current state of every bucket, sorted by organization.
func (r *RateLimiter) Snapshot() []core.RateLimiterState {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	orgs := make([]string, 0, len(r.buckets))
	buckets := make(map[string]*bucket, len(r.buckets))
	for org, b := range r.buckets {
		orgs = append(orgs, org)
		buckets[org] = b
	}
	r.mu.RUnlock()
	sort.Strings(orgs)

	now := r.now()
	states := make([]core.RateLimiterState, 0, len(orgs))
	for _, org := range orgs {
		b := buckets[org]
		b.mu.Lock()
		tokens := math.Max(0, b.limiter.TokensAt(now))
		states = append(states, core.RateLimiterState{
			Organization: org,
			Capacity:     b.capacity,
			Tokens:       math.Min(tokens, float64(b.capacity)),
			LastRefill:   b.lastRefill,
		})
		b.mu.Unlock()
	}
	return states
}

// bucketFor returns the organization's bucket, creating a default one for
// organizations that were never registered.
func (r *RateLimiter) bucketFor(organization string) *bucket {
	r.mu.RLock()
	b, ok := r.buckets[organization]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[organization]; ok {
		return b
	}
	if r.buckets == nil {
		r.buckets = make(map[string]*bucket)
		r.limits = make(map[string]int)
	}
	r.limits[organization] = core.DefaultRateLimitPerMinute
	b = newBucket(r.effectiveCapacityLocked(organization), r.now())
	r.buckets[organization] = b
	return b
}

// resizeLocked recomputes capacities after overrides or margin change.
// Tokens above the new capacity are dropped. Callers hold r.mu for writing.
func (r *RateLimiter) resizeLocked() {
	now := r.now()
	for org, b := range r.buckets {
		capacity := r.effectiveCapacityLocked(org)
		b.mu.Lock()
		if capacity != b.capacity {
			b.limiter.SetLimitAt(now, refillRate(capacity))
			b.limiter.SetBurstAt(now, capacity)
			b.capacity = capacity
		}
		b.mu.Unlock()
	}
}

func (r *RateLimiter) effectiveCapacityLocked(organization string) int {
	perMinute := r.limits[organization]
	if override, ok := r.overrides[core.SourceSlug(organization)]; ok {
		perMinute = override
	}
	if perMinute <= 0 {
		perMinute = core.DefaultRateLimitPerMinute
	}
	if r.margin > 0 && r.margin <= 1 {
		perMinute = int(math.Floor(float64(perMinute) * r.margin))
		if perMinute < 1 {
			perMinute = 1
		}
	}
	return perMinute
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
