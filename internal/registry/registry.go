// Package registry owns the lifecycle of submitted tasks, from admission
// through pipeline execution to a terminal status.
package registry

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hivemindhq/hivemind/internal/agent"
	"github.com/hivemindhq/hivemind/internal/audit"
	"github.com/hivemindhq/hivemind/internal/ratelimit"
	"github.com/hivemindhq/hivemind/internal/safety"
)

// Registry tracks every submitted task and drives its admission checks and
// pipeline run on a dedicated goroutine.
type Registry struct {
	gate    *safety.Gatekeeper
	limiter *ratelimit.Limiter
	exec    *agent.Executor
	store   *audit.Store

	mu    sync.RWMutex
	tasks map[string]*agent.State

	wg sync.WaitGroup
}

// New creates a task registry.
func New(gate *safety.Gatekeeper, limiter *ratelimit.Limiter, exec *agent.Executor, store *audit.Store) *Registry {
	return &Registry{
		gate:    gate,
		limiter: limiter,
		exec:    exec,
		store:   store,
		tasks:   make(map[string]*agent.State),
	}
}

// Submit registers a new task and returns its id immediately. The admission
// decision and any pipeline run happen asynchronously; poll Get for the
// outcome. Every call produces a fresh id, duplicate messages included.
func (r *Registry) Submit(ctx context.Context, agentType agent.Type, task string) (string, error) {
	if _, ok := agent.ConfigFor(agentType); !ok {
		return "", fmt.Errorf("unknown agent type: %s", agentType)
	}
	if strings.TrimSpace(task) == "" {
		return "", fmt.Errorf("task message is empty")
	}

	id := uuid.New()
	taskID := "task-" + hex.EncodeToString(id[:])[:12]
	st := agent.NewState(taskID, agentType, task)

	r.mu.Lock()
	r.tasks[taskID] = st
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.admitAndRun(ctx, st)
	}()

	return taskID, nil
}

// admitAndRun performs the gatekeeper and limiter checks, then the pipeline
// run. Each admission denial maps to its own terminal status and never
// reaches the executor.
func (r *Registry) admitAndRun(ctx context.Context, st *agent.State) {
	decision, err := r.gate.Evaluate(st.TaskID, string(st.AgentType), st.Task)
	if err != nil {
		r.finish(st, agent.StatusFailed, fmt.Sprintf("safety check: %v", err))
		return
	}
	if decision.Blocked() {
		r.finish(st, agent.StatusBlocked, decision.Reason)
		return
	}

	decision, err = r.gate.CheckAlignment(st.TaskID, string(st.AgentType), st.Task)
	if err != nil {
		r.finish(st, agent.StatusFailed, fmt.Sprintf("alignment check: %v", err))
		return
	}
	if !decision.Allowed {
		r.finish(st, agent.StatusRejected, decision.Reason)
		return
	}

	if ok, reason, err := r.limiter.Allowed(string(st.AgentType)); err != nil {
		r.finish(st, agent.StatusFailed, fmt.Sprintf("breaker check: %v", err))
		return
	} else if !ok {
		r.finish(st, agent.StatusRateLimited, reason)
		return
	}

	if ok, reason, err := r.limiter.AllowMessage(string(st.AgentType)); err != nil {
		r.finish(st, agent.StatusFailed, fmt.Sprintf("rate limit check: %v", err))
		return
	} else if !ok {
		r.finish(st, agent.StatusRateLimited, reason)
		return
	}

	if err := r.exec.Run(ctx, st); err != nil {
		slog.Warn("pipeline run failed", "taskId", st.TaskID, "agent", st.AgentType, "error", err)
	}
}

// finish records a terminal admission outcome on the state.
func (r *Registry) finish(st *agent.State, status agent.Status, reason string) {
	st.Update(func(s *agent.State) {
		s.Status = status
		s.Error = reason
		s.EndedAt = time.Now().UTC()
	})
}

// Get returns a snapshot of the task state, or false when the id is unknown.
func (r *Registry) Get(taskID string) (agent.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.tasks[taskID]
	if !ok {
		return agent.State{}, false
	}
	return st.Snapshot(), true
}

// Delete evicts a task record. Returns false when the id is unknown.
func (r *Registry) Delete(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskID]; !ok {
		return false
	}
	delete(r.tasks, taskID)
	return true
}

// List returns snapshots of all tracked tasks, in no particular order.
func (r *Registry) List() []agent.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.State, 0, len(r.tasks))
	for _, st := range r.tasks {
		out = append(out, st.Snapshot())
	}
	return out
}

// Wait blocks until every in-flight submission has reached a terminal state.
func (r *Registry) Wait() {
	r.wg.Wait()
}
