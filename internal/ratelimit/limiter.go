// Package ratelimit implements the per-tenant request admission engine: a
// burst window layered under a per-minute window, plus advisory bot
// heuristics that escalate to a captcha instead of blocking outright.
package ratelimit

import (
	"math"
	"strings"
	"sync"
	"time"
)

const (
	burstWindow  = 10 * time.Second
	minuteWindow = 60 * time.Second
)

// ReasonBurst and ReasonRate are the rejection reasons surfaced to clients.
const (
	ReasonBurst = "Burst limit exceeded"
	ReasonRate  = "Rate limit exceeded"
)

// botUserAgentMarkers are substrings that mark a user agent as automated.
var botUserAgentMarkers = []string{"bot", "crawler", "spider", "scraper", "curl", "wget"}

// Config holds limiter tunables. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	RequestsPerMinute int
	BurstLimit        int
	ExemptPaths       []string

	// Interval-regularity heuristic. Traffic whose inter-request gaps have
	// near-zero variance looks scripted. Best-effort signal, not bit-exact.
	IntervalHistorySize int
	RegularityMinSamples int
	// RegularityMaxVariance is the variance ceiling in ms² under which the
	// gap history counts as suspiciously regular.
	RegularityMaxVariance float64
	// RegularityMaxMeanGap bounds the heuristic to fast traffic; slow but
	// regular polling is not flagged.
	RegularityMaxMeanGap time.Duration
}

// DefaultConfig returns the limiter defaults.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute:     30,
		BurstLimit:            5,
		ExemptPaths:           []string{"/health", "/metrics", "/widget.js"},
		IntervalHistorySize:   10,
		RegularityMinSamples:  5,
		RegularityMaxVariance: 50,
		RegularityMaxMeanGap:  2 * time.Second,
	}
}

// Result is the admission decision for one request.
type Result struct {
	Allowed         bool   `json:"allowed"`
	RetryAfter      int    `json:"retryAfter,omitempty"` // seconds
	Reason          string `json:"reason,omitempty"`
	CaptchaRequired bool   `json:"captchaRequired,omitempty"`
}

// entry tracks one tenant:ip key. Both windows are wall-clock fixed windows;
// a system clock jump shifts them, which is accepted for this use case.
type entry struct {
	count           int
	resetTime       time.Time
	burstCount      int
	burstResetTime  time.Time
	lastRequestTime time.Time
	intervals       []time.Duration
}

// Limiter admits or rejects requests per key. All state is process-local;
// running multiple instances needs an external shared store, which is out of
// scope here.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	cfg     Config
	exempt  map[string]struct{}
	now     func() time.Time
}

// New creates a limiter with the given configuration.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.BurstLimit <= 0 {
		cfg.BurstLimit = DefaultConfig().BurstLimit
	}
	if cfg.IntervalHistorySize <= 0 {
		cfg.IntervalHistorySize = DefaultConfig().IntervalHistorySize
	}
	if cfg.RegularityMinSamples <= 0 {
		cfg.RegularityMinSamples = DefaultConfig().RegularityMinSamples
	}
	exempt := make(map[string]struct{}, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		exempt[p] = struct{}{}
	}
	return &Limiter{
		entries: make(map[string]*entry),
		cfg:     cfg,
		exempt:  exempt,
		now:     time.Now,
	}
}

// Key builds the limiter key from tenant and client IP. Tenants are isolated
// from each other even when IPs collide. Behind shared NAT this under-isolates
// distinct visitors; known limitation.
func Key(tenantID, ip string) string {
	return tenantID + ":" + ip
}

// IsBotUserAgent reports whether the user agent matches the static blocklist.
// Exported so call sites can apply stricter policy than the limiter itself
// (the limiter only escalates to a captcha).
func IsBotUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range botUserAgentMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

// Check decides whether a request for the given key and path is admitted.
// The check-then-increment sequence is one critical section so concurrent
// requests can never over-admit past a window limit.
func (l *Limiter) Check(key, path, userAgent string) Result {
	if _, ok := l.exempt[path]; ok {
		return Result{Allowed: true}
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}

	// Burst window first: a spike is rejected before it can consume the
	// per-minute budget.
	if now.After(e.burstResetTime) {
		e.burstCount = 1
		e.burstResetTime = now.Add(burstWindow)
	} else {
		if e.burstCount >= l.cfg.BurstLimit {
			return Result{
				Allowed:    false,
				Reason:     ReasonBurst,
				RetryAfter: retryAfterSeconds(e.burstResetTime, now),
			}
		}
		e.burstCount++
	}

	if now.After(e.resetTime) {
		e.count = 1
		e.resetTime = now.Add(minuteWindow)
	} else {
		if e.count >= l.cfg.RequestsPerMinute {
			return Result{
				Allowed:    false,
				Reason:     ReasonRate,
				RetryAfter: retryAfterSeconds(e.resetTime, now),
			}
		}
		e.count++
	}

	suspicious := IsBotUserAgent(userAgent)
	if !e.lastRequestTime.IsZero() {
		e.intervals = append(e.intervals, now.Sub(e.lastRequestTime))
		if len(e.intervals) > l.cfg.IntervalHistorySize {
			e.intervals = e.intervals[len(e.intervals)-l.cfg.IntervalHistorySize:]
		}
	}
	e.lastRequestTime = now
	if !suspicious {
		suspicious = l.regularIntervals(e.intervals)
	}

	return Result{Allowed: true, CaptchaRequired: suspicious}
}

// regularIntervals reports whether the recent inter-request gaps are spaced
// too evenly to be human.
func (l *Limiter) regularIntervals(intervals []time.Duration) bool {
	if len(intervals) < l.cfg.RegularityMinSamples {
		return false
	}

	var sum float64
	gaps := make([]float64, len(intervals))
	for i, iv := range intervals {
		gaps[i] = float64(iv.Milliseconds())
		sum += gaps[i]
	}
	mean := sum / float64(len(gaps))
	if l.cfg.RegularityMaxMeanGap > 0 && mean > float64(l.cfg.RegularityMaxMeanGap.Milliseconds()) {
		return false
	}

	var variance float64
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))

	return variance <= l.cfg.RegularityMaxVariance
}

// Sweep removes entries whose windows have both expired. Safe to call from a
// timer without blocking request handling for long; the map is walked once.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if now.After(e.resetTime) && now.After(e.burstResetTime) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func retryAfterSeconds(reset, now time.Time) int {
	secs := int(math.Ceil(reset.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
