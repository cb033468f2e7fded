// Package audit provides the durable, append-only audit log backing every
// safety and rate-limit decision in the system.
package audit

import "time"

// Severity classifies an audit entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Entry is one immutable audit record. ID is assigned by the store on
// insert and is strictly increasing.
type Entry struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"taskId,omitempty"` // empty for task-independent entries
	AgentType string    `json:"agentType"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// SafetyEvent records a gatekeeper or limiter denial for later review.
type SafetyEvent struct {
	ID        int64     `json:"id"`
	EventType string    `json:"eventType"`
	Details   string    `json:"details"`
	TaskID    string    `json:"taskId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

// RateLimitSample is a snapshot of a limit counter taken when a limit trips.
type RateLimitSample struct {
	ID           int64     `json:"id"`
	AgentType    string    `json:"agentType"`
	LimitType    string    `json:"limitType"`
	LimitValue   int       `json:"limitValue"`
	CurrentValue int       `json:"currentValue"`
	WindowStart  time.Time `json:"windowStart"`
	WindowEnd    time.Time `json:"windowEnd"`
	Timestamp    time.Time `json:"timestamp"`
}

// Filter narrows List queries for the reporting boundary.
type Filter struct {
	TaskID    string
	AgentType string
	Limit     int
	Offset    int
}
