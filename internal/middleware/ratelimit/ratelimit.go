// Package ratelimit implements a fixed-window, per-client request limiter.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	window   = time.Minute
	staleFor = 10 * time.Minute
)

// Limiter counts requests per client key in one-minute windows that start
// at the client's first request.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	limit    int
	interval time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	opened time.Time
	seen   time.Time
	count  int
}

type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter starts a limiter and its idle-client sweep. Call Stop when
// done.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	rl := &Limiter{
		buckets:  make(map[string]*bucket),
		limit:    config.RequestsPerMinute,
		interval: config.CleanupInterval,
		now:      config.Clock,
		stop:     make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Allow counts one request for key and reports whether it is within the
// limit.
func (rl *Limiter) Allow(key string) bool {
	ok, _ := rl.take(key)
	return ok
}

// take is Allow that also returns how long until key's window reopens
// when the request is refused.
func (rl *Limiter) take(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.opened) >= window {
		rl.buckets[key] = &bucket{opened: now, seen: now, count: 1}
		return true, 0
	}

	b.seen = now
	b.count++
	if b.count <= rl.limit {
		return true, 0
	}
	return false, b.opened.Add(window).Sub(now)
}

func (rl *Limiter) sweepLoop() {
	t := time.NewTicker(rl.interval)
	defer t.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-t.C:
			rl.cleanupStaleEntries()
		}
	}
}

// cleanupStaleEntries forgets clients idle for more than ten minutes.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-staleFor)
	for key, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Stop ends the sweep. Safe to call more than once.
func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Middleware refuses requests over the limit with Retry-After set to the
// seconds left in the client's window. key picks the bucket; onLimit, when
// set, writes the refusal body.
func (rl *Limiter) Middleware(key func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := rl.take(key(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			secs := int((wait + time.Second - 1) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		})
	}
}
