// internal/app/system/ratelimit/ratelimit.go

// Package ratelimit throttles repeated requests per key with a sliding
// window. Sign-in uses it to slow credential guessing; everything else in
// FieldHub runs behind an authenticated session and is not rate limited.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter counts requests per key within a fixed window.
// Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	duration time.Duration
	cleanup  time.Duration
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a limiter allowing at most limit requests per duration per key.
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		cleanup:  duration * 2,
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a request under key is within the limit, and counts
// it if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, exists := l.windows[key]

	if !exists || now.After(w.expiresAt) {
		l.windows[key] = &window{
			count:     1,
			expiresAt: now.Add(l.duration),
		}
		return true
	}

	if w.count >= l.limit {
		return false
	}

	w.count++
	return true
}

// Reset clears the window for key. Called after a successful sign-in so a
// user who finally remembered their password is not still locked out.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// cleanupLoop drops expired windows so the map does not grow without bound.
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for key, w := range l.windows {
			if now.After(w.expiresAt) {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}

// ClientIP extracts the client IP, preferring proxy headers over RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// SignInLimiter throttles sign-in attempts on two axes: per source IP so a
// single host cannot hammer the endpoint, and per login ID so a targeted
// account stays protected even when the attempts come from many IPs.
type SignInLimiter struct {
	ipLimiter    *Limiter
	loginLimiter *Limiter
}

// NewSignInLimiter returns a limiter with the default sign-in thresholds:
// 10 attempts per IP per minute, 5 attempts per login ID per 5 minutes.
func NewSignInLimiter() *SignInLimiter {
	return &SignInLimiter{
		ipLimiter:    New(10, time.Minute),
		loginLimiter: New(5, 5*time.Minute),
	}
}

// Check reports whether a sign-in attempt is allowed. When blocked, the
// returned reason is safe to show to the client.
func (sl *SignInLimiter) Check(r *http.Request, loginID string) (bool, string) {
	if !sl.ipLimiter.Allow(ClientIP(r)) {
		return false, "too many sign-in attempts; wait a minute and try again"
	}
	if loginID != "" {
		if !sl.loginLimiter.Allow(loginKey(loginID)) {
			return false, "too many sign-in attempts for this account; wait a few minutes"
		}
	}
	return true, ""
}

// ResetLogin clears the per-account window after a successful sign-in.
func (sl *SignInLimiter) ResetLogin(loginID string) {
	if loginID != "" {
		sl.loginLimiter.Reset(loginKey(loginID))
	}
}

func loginKey(loginID string) string {
	return strings.ToLower(strings.TrimSpace(loginID))
}
