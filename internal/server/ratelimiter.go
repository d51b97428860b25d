package server

import (
	"sync"
	"time"
)

// rateLimiter implements per-IP rate limiting with a sliding one-minute
// window. It protects the execution callback route, which is reachable by
// the platform and therefore by anything that learns a callback URL.
type rateLimiter struct {
	mu                sync.Mutex
	requests          map[string][]int64
	maxRequestsPerMin int
	cleanupInterval   time.Duration
	stopCleanup       chan struct{}
	stopOnce          sync.Once
}

func newRateLimiter(maxRequestsPerMinute int) *rateLimiter {
	rl := &rateLimiter{
		requests:          make(map[string][]int64),
		maxRequestsPerMin: maxRequestsPerMinute,
		cleanupInterval:   5 * time.Minute,
		stopCleanup:       make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether a request from ip fits inside the window and, when
// it does, records it.
func (rl *rateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now().UnixMilli()
	valid := pruneOlderThan(rl.requests[ip], now-60_000)

	if len(valid) >= rl.maxRequestsPerMin {
		rl.requests[ip] = valid
		return false
	}

	rl.requests[ip] = append(valid, now)
	return true
}

// RetryAfter returns the number of seconds until the oldest recorded
// request leaves the window.
func (rl *rateLimiter) RetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	reqs := rl.requests[ip]
	if len(reqs) == 0 {
		return 0
	}

	now := time.Now().UnixMilli()
	retryAfterMs := 60_000 - (now - reqs[0])
	if retryAfterMs < 0 {
		return 0
	}
	return int((retryAfterMs + 999) / 1000)
}

func pruneOlderThan(reqs []int64, cutoff int64) []int64 {
	valid := reqs[:0]
	for _, at := range reqs {
		if at > cutoff {
			valid = append(valid, at)
		}
	}
	return valid
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().UnixMilli() - 60_000
	for ip, reqs := range rl.requests {
		valid := pruneOlderThan(reqs, cutoff)
		if len(valid) == 0 {
			delete(rl.requests, ip)
		} else {
			rl.requests[ip] = valid
		}
	}
}

func (rl *rateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}
