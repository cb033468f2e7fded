package audit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendReturnsIncreasingIDs(t *testing.T) {
	store := newTestStore(t)

	var last int64
	for i := 0; i < 5; i++ {
		id, err := store.Append(Entry{
			TaskID:    "task-abc123",
			AgentType: "echo",
			Action:    "stage_completed",
			Details:   fmt.Sprintf("stage %d", i),
			Success:   true,
		})
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}
}

func TestAppendConcurrentWritersMonotonic(t *testing.T) {
	store := newTestStore(t)

	const writers = 8
	const perWriter = 20

	var wg sync.WaitGroup
	ids := make(chan int64, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id, err := store.Append(Entry{
					AgentType: "elon",
					Action:    "concurrent_write",
					Success:   true,
				})
				if err != nil {
					t.Errorf("writer %d append: %v", w, err)
					return
				}
				ids <- id
			}
		}(w)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate entry id %d", id)
		}
		seen[id] = true
	}
	require.Len(t, seen, writers*perWriter)
}

func TestTaskLogMostRecentFirst(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := store.Append(Entry{
			TaskID:    "task-xyz",
			AgentType: "henry",
			Action:    fmt.Sprintf("stage_%d", i),
			Success:   true,
		})
		require.NoError(t, err)
	}
	// An unrelated task must not appear.
	_, err := store.Append(Entry{TaskID: "task-other", AgentType: "echo", Action: "noise", Success: true})
	require.NoError(t, err)

	entries, err := store.TaskLog("task-xyz", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "stage_2", entries[0].Action)
	require.Equal(t, "stage_0", entries[2].Action)
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Append(Entry{TaskID: "task-1", AgentType: "echo", Action: "a", Success: true})
	require.NoError(t, err)
	_, err = store.Append(Entry{TaskID: "task-1", AgentType: "elon", Action: "b", Success: true})
	require.NoError(t, err)
	_, err = store.Append(Entry{TaskID: "task-2", AgentType: "elon", Action: "c", Success: true})
	require.NoError(t, err)

	entries, err := store.List(Filter{AgentType: "elon"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = store.List(Filter{TaskID: "task-1", AgentType: "elon"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "b", entries[0].Action)
}

func TestSafetyEventsQuery(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.LogSafetyEvent("dangerous_command", "matched pattern", "task-1"))
	require.NoError(t, store.LogSafetyEvent("rate_limited", "hourly cap", ""))

	events, err := store.RecentSafetyEvents(10, nil)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "rate_limited", events[0].EventType)
	require.Empty(t, events[0].TaskID)

	unresolved := false
	events, err = store.RecentSafetyEvents(10, &unresolved)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestPurgeOlderThan(t *testing.T) {
	store := newTestStore(t)

	old := Entry{AgentType: "echo", Action: "old", Timestamp: time.Now().UTC().Add(-48 * time.Hour), Success: true}
	_, err := store.Append(old)
	require.NoError(t, err)
	_, err = store.Append(Entry{AgentType: "echo", Action: "fresh", Success: true})
	require.NoError(t, err)
	require.NoError(t, store.LogSafetyEvent("dangerous_command", "recent event", ""))

	require.NoError(t, store.PurgeOlderThan(time.Now().UTC().Add(-24*time.Hour)))

	entries, err := store.List(Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "fresh", entries[0].Action)

	events, err := store.RecentSafetyEvents(10, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	id, err := store.Append(Entry{TaskID: "task-p", AgentType: "echo", Action: "persisted", Success: true})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	entries, err := reopened.TaskLog("task-p", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, id, entries[0].ID)
}
