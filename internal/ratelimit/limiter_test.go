package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hivemindhq/hivemind/internal/audit"
)

func newTestLimiter(t *testing.T) (*Limiter, *audit.Store) {
	t.Helper()
	store, err := audit.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewLimiter(DefaultConfig(), store), store
}

func TestHourlyMessageCap(t *testing.T) {
	limiter, store := newTestLimiter(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	limiter.now = func() time.Time { return current }

	for i := 0; i < 10; i++ {
		current = base.Add(time.Duration(i) * time.Minute)
		ok, _, err := limiter.AllowMessage("henry")
		require.NoError(t, err)
		require.True(t, ok, "call %d should be allowed", i+1)
	}

	// The 11th call inside the same window is denied and audited.
	current = base.Add(30 * time.Minute)
	ok, reason, err := limiter.AllowMessage("henry")
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, reason, "10 messages")

	entries, err := store.List(audit.Filter{AgentType: "henry"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "rate_limit_denied", entries[0].Action)
	require.False(t, entries[0].Success)

	// Advancing past the window frees exactly one slot: the oldest
	// timestamp (base) expires at base+1h.
	current = base.Add(time.Hour + time.Second)
	ok, _, err = limiter.AllowMessage("henry")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = limiter.AllowMessage("henry")
	require.NoError(t, err)
	require.False(t, ok, "only one slot should have freed up")
}

func TestHourlyMessageCapIsPerAgent(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	for i := 0; i < 10; i++ {
		ok, _, err := limiter.AllowMessage("henry")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, _, err := limiter.AllowMessage("henry")
	require.NoError(t, err)
	require.False(t, ok)

	ok, _, err = limiter.AllowMessage("echo")
	require.NoError(t, err)
	require.True(t, ok, "another agent's counter must be independent")
}

func TestDailyMentionCapResetsAtMidnight(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	day1 := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	current := day1
	limiter.now = func() time.Time { return current }

	for i := 0; i < 20; i++ {
		ok, _, err := limiter.AllowMention("henry")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, reason, err := limiter.AllowMention("henry")
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, reason, "20 mentions")

	// Next calendar day: full budget again.
	current = day1.Add(2 * time.Hour)
	ok, _, err = limiter.AllowMention("henry")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCircuitBreakerTripsAndResets(t *testing.T) {
	limiter, store := newTestLimiter(t)

	ok, _, err := limiter.Allowed("elon")
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.RecordFailure("elon"))
	}

	ok, reason, err := limiter.Allowed("elon")
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, reason, "circuit breaker open")

	// Tripping is sticky: time passing changes nothing.
	limiter.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	ok, _, err = limiter.Allowed("elon")
	require.NoError(t, err)
	require.False(t, ok)

	limiter.Reset("elon")
	ok, _, err = limiter.Allowed("elon")
	require.NoError(t, err)
	require.True(t, ok)

	events, err := store.RecentSafetyEvents(10, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "circuit_breaker_tripped", events[0].EventType)
}

func TestTokenQuotaAllOrNothing(t *testing.T) {
	cfgStore, err := audit.NewStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = cfgStore.Close() }()

	cfg := DefaultConfig()
	cfg.DailyTokenQuota = 1000
	limiter := NewLimiter(cfg, cfgStore)

	ok, _, err := limiter.ReserveTokens("elon", 900)
	require.NoError(t, err)
	require.True(t, ok)

	// Would exceed: rejected without consuming the remainder.
	ok, reason, err := limiter.ReserveTokens("elon", 200)
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, reason, "900 of 1000")

	ok, _, err = limiter.ReserveTokens("elon", 100)
	require.NoError(t, err)
	require.True(t, ok, "the failed reservation must not have consumed budget")
}

func TestConcurrentMessageChecksAdmitExactlyCap(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	const callers = 50
	var wg sync.WaitGroup
	admitted := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := limiter.AllowMessage("echo")
			if err != nil {
				t.Errorf("allow message: %v", err)
				return
			}
			admitted <- ok
		}()
	}
	wg.Wait()
	close(admitted)

	n := 0
	for ok := range admitted {
		if ok {
			n++
		}
	}
	require.Equal(t, DefaultConfig().HourlyMessageCap, n)
}

func TestStatsSnapshot(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	_, _, err := limiter.AllowMessage("henry")
	require.NoError(t, err)
	_, _, err = limiter.AllowMention("henry")
	require.NoError(t, err)
	require.NoError(t, limiter.RecordFailure("elon"))
	_, _, err = limiter.ReserveTokens("elon", 500)
	require.NoError(t, err)

	snap := limiter.Stats()
	require.Equal(t, 1, snap.HourlyMessages["henry"])
	require.Equal(t, 1, snap.DailyMentions["henry"])
	require.Equal(t, 1, snap.Failures["elon"])
	require.Equal(t, 500, snap.TokensUsedToday)
	require.Equal(t, 10, snap.Limits.HourlyMessageCap)
}
