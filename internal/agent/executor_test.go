package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hivemindhq/hivemind/internal/audit"
	"github.com/hivemindhq/hivemind/internal/ratelimit"
)

// scriptedGenerator returns a canned output per role and can be told to
// fail for one role, standing in for the external generation service.
type scriptedGenerator struct {
	mu      sync.Mutex
	failFor Role
	failErr error
	calls   []Role
}

func (g *scriptedGenerator) Generate(_ context.Context, role Role, prompt string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, role)
	g.mu.Unlock()
	if g.failErr != nil && role == g.failFor {
		return "", g.failErr
	}
	return fmt.Sprintf("%s output", role), nil
}

func newTestExecutor(t *testing.T, gen Generator) (*Executor, *ratelimit.Limiter, *audit.Store) {
	t.Helper()
	store, err := audit.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(), store)
	return NewExecutor(gen, limiter, store), limiter, store
}

func TestRunElonPipelineDeterministic(t *testing.T) {
	gen := &scriptedGenerator{}
	ex, _, store := newTestExecutor(t, gen)

	st := NewState("task-elon1", TypeElon, "优化系统性能")
	require.NoError(t, ex.Run(context.Background(), st))

	require.Equal(t, StatusCompleted, st.Status)
	require.Equal(t, 100, st.Progress)

	// Exactly one output per declared stage.
	require.Len(t, st.StageOutputs, 4)
	for _, name := range []string{"architect", "code", "test", "review"} {
		require.Contains(t, st.StageOutputs, name)
	}

	// Roles were consulted in declared order.
	require.Equal(t, []Role{RoleArchitect, RoleCoder, RoleQA, RoleReviewer}, gen.calls)

	// Four stage entries plus the completion entry.
	entries, err := store.TaskLog("task-elon1", 20)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 5)
	require.Equal(t, "pipeline_completed", entries[0].Action)
	require.Len(t, st.AuditTrail, 5)
}

func TestRunEchoPipeline(t *testing.T) {
	gen := &scriptedGenerator{}
	ex, _, _ := newTestExecutor(t, gen)

	st := NewState("task-echo1", TypeEcho, "ship the new release")
	require.NoError(t, ex.Run(context.Background(), st))

	require.Equal(t, StatusCompleted, st.Status)
	require.Len(t, st.StageOutputs, 4)
	// Only parse-intent consults the generation service; the rest are
	// local bookkeeping stages.
	require.Equal(t, []Role{RoleEcho}, gen.calls)
	require.Contains(t, st.StageOutputs["report"], "ship the new release")
}

func TestStageFailureTerminatesRun(t *testing.T) {
	gen := &scriptedGenerator{failFor: RoleCoder, failErr: errors.New("provider timeout")}
	ex, _, store := newTestExecutor(t, gen)

	st := NewState("task-elon2", TypeElon, "修复登录问题")
	err := ex.Run(context.Background(), st)
	require.Error(t, err)
	require.Contains(t, err.Error(), "stage code")

	require.Equal(t, StatusFailed, st.Status)
	require.Contains(t, st.Error, "provider timeout")
	// The failed stage produced no output; earlier stages did.
	require.Contains(t, st.StageOutputs, "architect")
	require.NotContains(t, st.StageOutputs, "code")

	entries, err := store.TaskLog("task-elon2", 20)
	require.NoError(t, err)
	require.Equal(t, "stage_failed", entries[0].Action)
	require.Equal(t, audit.SeverityCritical, entries[0].Severity)
}

func TestElonTestFailureFeedsCircuitBreaker(t *testing.T) {
	gen := &scriptedGenerator{failFor: RoleQA, failErr: errors.New("test run failed")}
	ex, limiter, _ := newTestExecutor(t, gen)

	for i := 0; i < 3; i++ {
		st := NewState(fmt.Sprintf("task-elon-f%d", i), TypeElon, "重构存储层")
		require.Error(t, ex.Run(context.Background(), st))
	}

	ok, reason, err := limiter.Allowed(string(TypeElon))
	require.NoError(t, err)
	require.False(t, ok, "three test failures must trip the breaker")
	require.Contains(t, reason, "circuit breaker open")
}

func TestHenryMentionBudgetGatesFinalStage(t *testing.T) {
	gen := &scriptedGenerator{}
	ex, limiter, _ := newTestExecutor(t, gen)

	// Exhaust the daily mention budget up front.
	for i := 0; i < ratelimit.DefaultConfig().DailyMentionCap; i++ {
		ok, _, err := limiter.AllowMention(string(TypeHenry))
		require.NoError(t, err)
		require.True(t, ok)
	}

	st := NewState("task-henry1", TypeHenry, "研究社区热点")
	err := ex.Run(context.Background(), st)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mention budget exhausted")

	require.Equal(t, StatusFailed, st.Status)
	require.Contains(t, st.StageOutputs, "research")
	require.Contains(t, st.StageOutputs, "write")
	require.NotContains(t, st.StageOutputs, "network-interact")
	// The networker role was never consulted.
	require.Equal(t, []Role{RoleResearcher, RoleWriter}, gen.calls)
}

func TestTokenQuotaFailsStage(t *testing.T) {
	store, err := audit.NewStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	cfg := ratelimit.DefaultConfig()
	cfg.DailyTokenQuota = 10 // tiny budget: first generation blows it
	limiter := ratelimit.NewLimiter(cfg, store)
	ex := NewExecutor(&scriptedGenerator{}, limiter, store)

	st := NewState("task-henry2", TypeHenry, "分析用户反馈并生成报告")
	err = ex.Run(context.Background(), st)
	require.Error(t, err)
	require.Contains(t, err.Error(), "token quota")
	require.Equal(t, StatusFailed, st.Status)
}

func TestProgressMonotone(t *testing.T) {
	st := NewState("task-x", TypeEcho, "hello")
	st.advance(50)
	st.advance(25)
	require.Equal(t, 50, st.Progress)
	st.advance(200)
	require.Equal(t, 100, st.Progress)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	st := NewState("task-y", TypeEcho, "hello")
	st.StageOutputs["a"] = "1"
	st.AuditTrail = append(st.AuditTrail, 7)

	snap := st.Snapshot()
	snap.StageOutputs["b"] = "2"
	snap.AuditTrail[0] = 99

	require.NotContains(t, st.StageOutputs, "b")
	require.Equal(t, int64(7), st.AuditTrail[0])
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"echo", "elon", "henry"} {
		tp, err := ParseType(s)
		require.NoError(t, err)
		require.Equal(t, Type(s), tp)
	}
	_, err := ParseType("architect")
	require.Error(t, err)
}
