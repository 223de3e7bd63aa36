package auth

import (
	"sync"
	"time"
)

const (
	defaultMaxFailures   = 5
	defaultFailureWindow = 15 * time.Minute
	defaultLockout       = 15 * time.Minute
)

// Throttle limits with sensible defaults
type ThrottleConfig struct {
	// Failures within the window before the key is locked out
	// If not set then default is used
	MaxFailures int

	// Window and lockout are configured independently even though the
	// defaults happen to be equal
	Window  time.Duration
	Lockout time.Duration
}

type attemptState struct {
	failures     int
	windowStart  time.Time
	blockedUntil time.Time // zero value means not blocked
}

// LoginThrottle counts consecutive login failures per key (normalized email
// plus client IP) in a sliding window and locks the key out once the
// threshold is reached. State is process local and in memory only.
//
// All reads and updates happen under one mutex, so a burst of concurrent
// failures for the same key never under-counts and lazy eviction in
// IsBlocked cannot race a concurrent RecordFailure.
type LoginThrottle struct {
	mu       sync.Mutex
	attempts map[string]attemptState

	maxFailures int
	window      time.Duration
	lockout     time.Duration

	// injectable clock to keep window and lockout checks testable
	now func() time.Time
}

func NewLoginThrottle(cfg ThrottleConfig) *LoginThrottle {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.Window == 0 {
		cfg.Window = defaultFailureWindow
	}
	if cfg.Lockout == 0 {
		cfg.Lockout = defaultLockout
	}

	return &LoginThrottle{
		attempts:    make(map[string]attemptState),
		maxFailures: cfg.MaxFailures,
		window:      cfg.Window,
		lockout:     cfg.Lockout,
		now:         time.Now,
	}
}

// ThrottleKey builds the throttle key from a normalized email and client IP
func ThrottleKey(email string, ip string) string {
	return email + "|" + ip
}

// IsBlocked reports whether the key is currently locked out.
// An expired lockout is evicted as a side effect.
func (t *LoginThrottle) IsBlocked(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.attempts[key]
	if !ok || state.blockedUntil.IsZero() {
		return false
	}

	if t.now().After(state.blockedUntil) {
		delete(t.attempts, key)
		return false
	}

	return true
}

// RecordFailure counts one failed attempt. A failure outside the active
// window starts a fresh streak; reaching the threshold sets the lockout.
func (t *LoginThrottle) RecordFailure(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	state, ok := t.attempts[key]
	if !ok || now.After(state.windowStart.Add(t.window)) {
		state = attemptState{windowStart: now}
	}

	state.failures++
	if state.failures >= t.maxFailures {
		state.blockedUntil = now.Add(t.lockout)
	}
	t.attempts[key] = state
}

// RecordSuccess clears any failure history for the key
func (t *LoginThrottle) RecordSuccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.attempts, key)
}
