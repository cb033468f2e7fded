// Package ratelimit bounds the frequency and failure tolerance of agent
// actions. It enforces four independently keyed limits: an hourly message
// cap (sliding window), a daily mention cap (calendar day), a sticky failure
// circuit breaker, and a daily token quota.
//
// All counters are process-local and volatile: they reset when the process
// restarts. For the daily token quota in particular this means a restart
// forgives budget already spent that day. The original system had the same
// gap; it is kept deliberate and documented here instead of silently fixed.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/hivemindhq/hivemind/internal/audit"
)

// Kind identifies one of the limit kinds.
type Kind string

const (
	KindHourlyMessages Kind = "hourly_messages"
	KindDailyMentions  Kind = "daily_mentions"
	KindTestFailures   Kind = "test_failures"
	KindDailyTokens    Kind = "daily_tokens"
)

// Config holds the ceilings for every limit kind.
type Config struct {
	HourlyMessageCap int           `mapstructure:"hourlyMessageCap" validate:"min=1"`
	MessageWindow    time.Duration `mapstructure:"messageWindow" validate:"min=1s"`
	DailyMentionCap  int           `mapstructure:"dailyMentionCap" validate:"min=1"`
	FailureThreshold int           `mapstructure:"failureThreshold" validate:"min=1"`
	DailyTokenQuota  int           `mapstructure:"dailyTokenQuota" validate:"min=1"`
}

// DefaultConfig returns the stock ceilings.
func DefaultConfig() Config {
	return Config{
		HourlyMessageCap: 10,
		MessageWindow:    time.Hour,
		DailyMentionCap:  20,
		FailureThreshold: 3,
		DailyTokenQuota:  100000,
	}
}

// Limiter owns all rate-limit counter state. Checks and the recording of
// the admitted event happen as one atomic step under the limiter's lock, so
// two concurrent callers can never both pass a check meant to admit one.
type Limiter struct {
	cfg   Config
	store *audit.Store
	now   func() time.Time

	mu       sync.Mutex
	messages map[string][]time.Time    // agent -> event timestamps in window
	mentions map[string]map[string]int // agent -> date key -> count
	failures map[string]int            // agent -> failure count
	tokens   map[string]int            // date key -> tokens used
}

// NewLimiter creates a limiter that records denials to the given audit store.
func NewLimiter(cfg Config, store *audit.Store) *Limiter {
	return &Limiter{
		cfg:      cfg,
		store:    store,
		now:      time.Now,
		messages: make(map[string][]time.Time),
		mentions: make(map[string]map[string]int),
		failures: make(map[string]int),
		tokens:   make(map[string]int),
	}
}

// AllowMessage checks the hourly sliding-window cap for the agent and, when
// allowed, records the message in the same atomic step. A returned error
// means the audit write failed; the denial still stands (fail closed).
func (l *Limiter) AllowMessage(agentType string) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.MessageWindow)

	// Lazy prune: drop timestamps that fell out of the trailing window.
	kept := l.messages[agentType][:0]
	for _, t := range l.messages[agentType] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.messages[agentType] = kept

	if len(kept) >= l.cfg.HourlyMessageCap {
		reason := fmt.Sprintf("rate limit: %d messages in the last hour (max %d)", len(kept), l.cfg.HourlyMessageCap)
		err := l.logDenial(agentType, KindHourlyMessages, len(kept), l.cfg.HourlyMessageCap, cutoff, now, reason)
		return false, reason, err
	}

	l.messages[agentType] = append(kept, now)
	return true, "", nil
}

// AllowMention checks the per-calendar-day mention cap. The counter is keyed
// by local date and resets at local midnight; stale date keys are pruned on
// each check.
func (l *Limiter) AllowMention(agentType string) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.dateKey()
	counts := l.mentions[agentType]
	if counts == nil {
		counts = make(map[string]int)
		l.mentions[agentType] = counts
	}
	for day := range counts {
		if day != today {
			delete(counts, day)
		}
	}

	if counts[today] >= l.cfg.DailyMentionCap {
		reason := fmt.Sprintf("rate limit: %d mentions today (max %d)", counts[today], l.cfg.DailyMentionCap)
		err := l.logDenial(agentType, KindDailyMentions, counts[today], l.cfg.DailyMentionCap, l.midnight(), l.midnight().Add(24*time.Hour), reason)
		return false, reason, err
	}

	counts[today]++
	return true, "", nil
}

// RecordFailure increments the agent's failure counter. Reaching the
// threshold trips the circuit breaker, which stays tripped until Reset.
func (l *Limiter) RecordFailure(agentType string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures[agentType]++
	if l.failures[agentType] == l.cfg.FailureThreshold {
		details := fmt.Sprintf("circuit breaker tripped for %s after %d failures", agentType, l.failures[agentType])
		if err := l.store.LogSafetyEvent("circuit_breaker_tripped", details, ""); err != nil {
			return err
		}
		if _, err := l.store.Append(audit.Entry{
			AgentType: agentType,
			Action:    "circuit_breaker_tripped",
			Details:   details,
			Severity:  audit.SeverityCritical,
			Success:   false,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Allowed reports whether the agent's circuit breaker permits new work.
// While tripped every call is a denial and is audited as such.
func (l *Limiter) Allowed(agentType string) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	failures := l.failures[agentType]
	if failures >= l.cfg.FailureThreshold {
		reason := fmt.Sprintf("circuit breaker open: %d failures (threshold %d), reset required", failures, l.cfg.FailureThreshold)
		err := l.logDenial(agentType, KindTestFailures, failures, l.cfg.FailureThreshold, time.Time{}, time.Time{}, reason)
		return false, reason, err
	}
	return true, "", nil
}

// Reset clears the agent's failure counter. This is the only way to close a
// tripped breaker; there is no time-based recovery.
func (l *Limiter) Reset(agentType string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[agentType] = 0
}

// ReserveTokens admits n tokens against the daily quota, all or nothing. A
// request that would exceed the remaining budget is rejected without
// consuming any of it.
func (l *Limiter) ReserveTokens(agentType string, n int) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.dateKey()
	for day := range l.tokens {
		if day != today {
			delete(l.tokens, day)
		}
	}

	used := l.tokens[today]
	if used+n > l.cfg.DailyTokenQuota {
		reason := fmt.Sprintf("token quota: %d of %d used today, cannot reserve %d more", used, l.cfg.DailyTokenQuota, n)
		err := l.logDenial(agentType, KindDailyTokens, used, l.cfg.DailyTokenQuota, l.midnight(), l.midnight().Add(24*time.Hour), reason)
		return false, reason, err
	}

	l.tokens[today] = used + n
	return true, "", nil
}

// Snapshot is a point-in-time view of the limiter's counters.
type Snapshot struct {
	HourlyMessages  map[string]int `json:"hourlyMessages"`
	DailyMentions   map[string]int `json:"dailyMentions"`
	Failures        map[string]int `json:"failures"`
	TokensUsedToday int            `json:"tokensUsedToday"`
	Limits          Config         `json:"limits"`
}

// Stats returns the current counter snapshot per limit kind.
func (l *Limiter) Stats() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.MessageWindow)
	today := l.dateKey()

	snap := Snapshot{
		HourlyMessages: make(map[string]int),
		DailyMentions:  make(map[string]int),
		Failures:       make(map[string]int),
		Limits:         l.cfg,
	}
	for agent, times := range l.messages {
		n := 0
		for _, t := range times {
			if t.After(cutoff) {
				n++
			}
		}
		snap.HourlyMessages[agent] = n
	}
	for agent, counts := range l.mentions {
		snap.DailyMentions[agent] = counts[today]
	}
	for agent, n := range l.failures {
		snap.Failures[agent] = n
	}
	snap.TokensUsedToday = l.tokens[today]
	return snap
}

// logDenial records a denial as both an audit entry and a rate-limit
// counter snapshot. Caller holds l.mu.
func (l *Limiter) logDenial(agentType string, kind Kind, current, ceiling int, windowStart, windowEnd time.Time, reason string) error {
	if _, err := l.store.Append(audit.Entry{
		AgentType: agentType,
		Action:    "rate_limit_denied",
		Details:   fmt.Sprintf("%s: %s", kind, reason),
		Severity:  audit.SeverityWarning,
		Success:   false,
	}); err != nil {
		return fmt.Errorf("audit rate limit denial: %w", err)
	}
	if err := l.store.LogRateLimit(audit.RateLimitSample{
		AgentType:    agentType,
		LimitType:    string(kind),
		LimitValue:   ceiling,
		CurrentValue: current,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
	}); err != nil {
		return fmt.Errorf("record rate limit sample: %w", err)
	}
	return nil
}

// dateKey returns the local calendar-day key for daily counters.
func (l *Limiter) dateKey() string {
	return l.now().Format("2006-01-02")
}

// midnight returns the start of the current local day.
func (l *Limiter) midnight() time.Time {
	now := l.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
