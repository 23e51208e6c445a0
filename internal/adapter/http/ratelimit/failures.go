// Package ratelimit throttles clients that keep presenting bad API tokens.
package ratelimit

import (
	"sync"
	"time"
)

type record struct {
	count        int
	lastFailure  time.Time
	blockedUntil time.Time
}

// FailureLimiter blocks a client for blockDuration once it fails more than
// maxFailures times within window.
type FailureLimiter struct {
	mu            sync.Mutex
	clients       map[string]*record
	maxFailures   int
	window        time.Duration
	blockDuration time.Duration
	now           func() time.Time
	stop          chan struct{}
	stopOnce      sync.Once
}

func NewFailureLimiter(maxFailures int, window, blockDuration time.Duration) *FailureLimiter {
	l := &FailureLimiter{
		clients:       make(map[string]*record),
		maxFailures:   maxFailures,
		window:        window,
		blockDuration: blockDuration,
		now:           time.Now,
		stop:          make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Blocked reports whether the client is currently locked out and for how long.
func (l *FailureLimiter) Blocked(clientID string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.clients[clientID]
	if !ok {
		return false, 0
	}
	now := l.now()
	if now.Before(rec.blockedUntil) {
		return true, rec.blockedUntil.Sub(now)
	}
	return false, 0
}

func (l *FailureLimiter) Failure(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.clients[clientID]
	if !ok {
		rec = &record{}
		l.clients[clientID] = rec
	}
	if now.Sub(rec.lastFailure) > l.window {
		rec.count = 0
	}
	rec.count++
	rec.lastFailure = now

	if rec.count > l.maxFailures {
		rec.blockedUntil = now.Add(l.blockDuration)
	}
}

func (l *FailureLimiter) Reset(clientID string) {
	l.mu.Lock()
	delete(l.clients, clientID)
	l.mu.Unlock()
}

func (l *FailureLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *FailureLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.prune()
		}
	}
}

func (l *FailureLimiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, rec := range l.clients {
		if now.Sub(rec.lastFailure) > l.window*2 && now.After(rec.blockedUntil) {
			delete(l.clients, id)
		}
	}
}
