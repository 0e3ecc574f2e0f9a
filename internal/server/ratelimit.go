package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter tracks per-client request rates and daily image quotas.
type RateLimiter struct {
	mu sync.RWMutex

	requestsPerMinute int
	requestsPerHour   int

	maxRequestsPerDay int
	maxImagesPerDay   int

	clients   map[string]*ClientUsage
	lastSweep time.Time
}

// A client idle for clientIdleTTL has no open window left.
const (
	clientIdleTTL = 24 * time.Hour
	sweepInterval = time.Hour
)

// ClientUsage tracks usage for a specific client address.
type ClientUsage struct {
	requestsLastMinute int
	requestsLastHour   int
	requestsToday      int
	imagesToday        int

	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
	lastSeen    time.Time
}

// NewRateLimiter creates a rate limiter. A zero limit disables that check.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay, maxImagesPerDay int) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		maxImagesPerDay:   maxImagesPerDay,
		clients:           make(map[string]*ClientUsage),
	}
}

// Allow checks whether a request from client may proceed and records it
// when it does. Image quotas are charged separately via ConsumeImages once
// the request body has been parsed.
func (rl *RateLimiter) Allow(client string) error {
	return rl.allowAt(client, time.Now())
}

func (rl *RateLimiter) allowAt(client string, now time.Time) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	usage := rl.usageFor(client, now)
	usage.roll(now)

	if rl.requestsPerMinute > 0 && usage.requestsLastMinute >= rl.requestsPerMinute {
		return &RateLimitError{
			Type:       "minute",
			Limit:      rl.requestsPerMinute,
			RetryAfter: usage.minuteStart.Add(time.Minute).Sub(now),
		}
	}
	if rl.requestsPerHour > 0 && usage.requestsLastHour >= rl.requestsPerHour {
		return &RateLimitError{
			Type:       "hour",
			Limit:      rl.requestsPerHour,
			RetryAfter: usage.hourStart.Add(time.Hour).Sub(now),
		}
	}

	if rl.maxRequestsPerDay > 0 && usage.requestsToday >= rl.maxRequestsPerDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  rl.maxRequestsPerDay,
			Used:   usage.requestsToday,
			Resets: nextDay(now),
		}
	}

	usage.requestsLastMinute++
	usage.requestsLastHour++
	usage.requestsToday++
	return nil
}

// ConsumeImages charges n images against the daily image quota of client.
func (rl *RateLimiter) ConsumeImages(client string, n int) error {
	return rl.consumeAt(client, n, time.Now())
}

func (rl *RateLimiter) consumeAt(client string, n int, now time.Time) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	usage := rl.usageFor(client, now)
	usage.roll(now)

	if rl.maxImagesPerDay > 0 && usage.imagesToday+n > rl.maxImagesPerDay {
		return &QuotaExceededError{
			Type:   "images",
			Limit:  rl.maxImagesPerDay,
			Used:   usage.imagesToday,
			Resets: nextDay(now),
		}
	}
	usage.imagesToday += n
	return nil
}

func nextDay(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}

// roll resets the windows whose period has elapsed.
func (u *ClientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.requestsLastMinute = 0
		u.minuteStart = now
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.requestsLastHour = 0
		u.hourStart = now
	}
	y1, m1, d1 := now.Date()
	y2, m2, d2 := u.dayStart.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		u.requestsToday = 0
		u.imagesToday = 0
		u.dayStart = now
	}
}

func (rl *RateLimiter) usageFor(client string, now time.Time) *ClientUsage {
	rl.sweep(now)

	usage, ok := rl.clients[client]
	if !ok {
		usage = &ClientUsage{minuteStart: now, hourStart: now, dayStart: now}
		rl.clients[client] = usage
	}
	usage.lastSeen = now
	return usage
}

// sweep drops clients idle for longer than clientIdleTTL. It runs at most
// once per sweepInterval. Callers hold rl.mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if rl.lastSweep.IsZero() {
		rl.lastSweep = now
		return
	}
	if now.Sub(rl.lastSweep) < sweepInterval {
		return
	}
	rl.lastSweep = now
	for client, usage := range rl.clients {
		if now.Sub(usage.lastSeen) >= clientIdleTTL {
			delete(rl.clients, client)
		}
	}
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.clients)
}

// Usage returns a snapshot of the usage counters for client.
func (rl *RateLimiter) Usage(client string) ClientUsage {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if usage, ok := rl.clients[client]; ok {
		return *usage
	}
	return ClientUsage{}
}

// RateLimitError reports a request rate violation.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError reports a daily quota violation.
type QuotaExceededError struct {
	Type   string // "requests" or "images"
	Limit  int
	Used   int
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
