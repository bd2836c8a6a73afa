package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket refilled at rate tokens per second up to burst.
type Limiter struct {
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Allow reports whether one request may proceed, consuming a token if so.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now

	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}

	if l.tokens >= 1 {
		l.tokens--
		return true
	}

	return false
}

// ClientLimiters keeps one Limiter per client key, creating them lazily.
type ClientLimiters struct {
	limiters map[string]*Limiter
	rate     float64
	burst    int
	mu       sync.RWMutex
}

func NewClientLimiters(rate float64, burst int) *ClientLimiters {
	return &ClientLimiters{
		limiters: make(map[string]*Limiter),
		rate:     rate,
		burst:    burst,
	}
}

// Get returns the limiter for clientID, creating it on first use.
func (cl *ClientLimiters) Get(clientID string) *Limiter {
	cl.mu.RLock()
	limiter, ok := cl.limiters[clientID]
	cl.mu.RUnlock()

	if ok {
		return limiter
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if limiter, ok := cl.limiters[clientID]; ok {
		return limiter
	}

	limiter = NewLimiter(cl.rate, cl.burst)
	cl.limiters[clientID] = limiter
	return limiter
}
