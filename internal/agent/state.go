package agent

import (
	"sync"
	"time"
)

// Status is a task's lifecycle state. blocked, rejected and rate_limited are
// admission outcomes; completed and failed are pipeline outcomes. All five
// are terminal.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusBlocked     Status = "blocked"
	StatusRejected    Status = "rejected"
	StatusRateLimited Status = "rate_limited"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusBlocked, StatusRejected, StatusRateLimited, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// State is the mutable task-state record threaded through one pipeline run.
// The run goroutine is the sole writer; external readers only ever see
// Snapshot copies. Writers hold mu for each mutation so snapshots taken
// mid-run are consistent.
type State struct {
	mu *sync.Mutex

	TaskID       string            `json:"taskId"`
	AgentType    Type              `json:"agentType"`
	Task         string            `json:"task"`
	Status       Status            `json:"status"`
	Progress     int               `json:"progress"`
	StageOutputs map[string]string `json:"stageOutputs,omitempty"`
	StartedAt    time.Time         `json:"startedAt"`
	EndedAt      time.Time         `json:"endedAt,omitzero"`
	Error        string            `json:"error,omitempty"`

	// AuditTrail holds the ids of audit entries recorded for this run,
	// append-only, in insertion order.
	AuditTrail []int64 `json:"auditTrail,omitempty"`
}

// NewState creates a pending task-state record.
func NewState(taskID string, agentType Type, task string) *State {
	return &State{
		mu:           new(sync.Mutex),
		TaskID:       taskID,
		AgentType:    agentType,
		Task:         task,
		Status:       StatusPending,
		StageOutputs: make(map[string]string),
		StartedAt:    time.Now().UTC(),
	}
}

// Update runs fn with the record locked. All writes to a live record go
// through here.
func (s *State) Update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// advance raises progress to p. Progress is monotone within a run: moves
// downward are ignored. Callers hold mu via Update.
func (s *State) advance(p int) {
	if p > 100 {
		p = 100
	}
	if p > s.Progress {
		s.Progress = p
	}
}

// Snapshot returns a deep copy safe to hand to external readers.
func (s *State) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *s
	out.StageOutputs = make(map[string]string, len(s.StageOutputs))
	for k, v := range s.StageOutputs {
		out.StageOutputs[k] = v
	}
	out.AuditTrail = append([]int64(nil), s.AuditTrail...)
	return out
}
