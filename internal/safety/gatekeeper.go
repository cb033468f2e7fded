package safety

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hivemindhq/hivemind/internal/audit"
	"github.com/hivemindhq/hivemind/internal/utils"
)

// Decision is the transient outcome of an admission check. It is not
// persisted; denials drive audit entries instead.
type Decision struct {
	Allowed bool
	Code    string
	Reason  string
}

// Decision codes.
const (
	CodeOK            = "ok"
	CodeCoercive      = "coercive_intent"
	CodeDestructive   = "destructive_action"
	CodeResourceAbuse = "resource_abuse"
	CodeMisaligned    = "goal_misaligned"
)

// Blocked reports whether the decision is a safety block, as opposed to a
// goal-alignment rejection.
func (d Decision) Blocked() bool {
	switch d.Code {
	case CodeCoercive, CodeDestructive, CodeResourceAbuse:
		return true
	}
	return false
}

const detailPreview = 50

// Gatekeeper evaluates tasks against the active rule set and records every
// denial in the audit store before returning it.
type Gatekeeper struct {
	mu    sync.RWMutex
	rules RuleSet
	store *audit.Store
}

// NewGatekeeper creates a gatekeeper with the given rules.
func NewGatekeeper(rules RuleSet, store *audit.Store) (*Gatekeeper, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}
	return &Gatekeeper{rules: rules, store: store}, nil
}

// Rules returns the active rule set.
func (g *Gatekeeper) Rules() RuleSet {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rules
}

// SetRules atomically swaps in a new rule set.
func (g *Gatekeeper) SetRules(rules RuleSet) error {
	if err := rules.Validate(); err != nil {
		return fmt.Errorf("invalid rule set: %w", err)
	}
	g.mu.Lock()
	g.rules = rules
	g.mu.Unlock()
	return nil
}

// Evaluate runs the safety screens in order: coercive patterns, destructive
// patterns, then the resource bound. Evaluation short-circuits on the first
// match. Every block appends a critical audit entry and a safety event
// before returning; if that write fails the error is returned and the task
// stays denied (fail closed).
func (g *Gatekeeper) Evaluate(taskID, agentType, task string) (Decision, error) {
	g.mu.RLock()
	rules := g.rules
	g.mu.RUnlock()

	lower := strings.ToLower(task)

	for _, p := range rules.Coercive {
		if strings.Contains(lower, strings.ToLower(p)) {
			d := Decision{Code: CodeCoercive, Reason: fmt.Sprintf("coercive intent pattern %q", p)}
			return d, g.logBlock(taskID, agentType, "dangerous_command", d.Reason, task)
		}
	}

	for _, p := range rules.Destructive {
		if strings.Contains(lower, strings.ToLower(p)) {
			d := Decision{Code: CodeDestructive, Reason: fmt.Sprintf("destructive action pattern %q", p)}
			return d, g.logBlock(taskID, agentType, "malicious_command", d.Reason, task)
		}
	}

	if n := utf8.RuneCountInString(task); n > rules.MaxTaskRunes {
		d := Decision{Code: CodeResourceAbuse, Reason: fmt.Sprintf("task too long: %d characters (max %d)", n, rules.MaxTaskRunes)}
		return d, g.logBlock(taskID, agentType, "resource_abuse", d.Reason, task)
	}

	return Decision{Allowed: true, Code: CodeOK, Reason: "safe"}, nil
}

// CheckAlignment is the goal-alignment screen. It runs independently of
// Evaluate: a task is aligned if it is short and conversational, matches the
// greeting allowlist exactly, or contains at least one core-goal verb.
// Misalignment is a soft rejection, recorded at info severity.
func (g *Gatekeeper) CheckAlignment(taskID, agentType, task string) (Decision, error) {
	g.mu.RLock()
	rules := g.rules
	g.mu.RUnlock()

	if utf8.RuneCountInString(task) < rules.GreetingMaxRunes {
		return Decision{Allowed: true, Code: CodeOK, Reason: "conversational"}, nil
	}
	for _, greeting := range rules.Greetings {
		if task == greeting {
			return Decision{Allowed: true, Code: CodeOK, Reason: "conversational"}, nil
		}
	}

	lower := strings.ToLower(task)
	for _, verb := range rules.GoalVerbs {
		if strings.Contains(lower, strings.ToLower(verb)) {
			return Decision{Allowed: true, Code: CodeOK, Reason: "goal aligned"}, nil
		}
	}

	d := Decision{Code: CodeMisaligned, Reason: "task does not reference any core goal"}
	details := fmt.Sprintf("%s: %s", d.Reason, utils.Truncate(task, detailPreview))
	if _, err := g.store.Append(audit.Entry{
		TaskID:    taskID,
		AgentType: agentType,
		Action:    "goal_alignment_failed",
		Details:   details,
		Severity:  audit.SeverityInfo,
		Success:   false,
	}); err != nil {
		return d, fmt.Errorf("audit alignment rejection: %w", err)
	}
	return d, nil
}

// logBlock records a safety block at critical severity.
func (g *Gatekeeper) logBlock(taskID, agentType, eventType, reason, task string) error {
	details := fmt.Sprintf("%s: %s", reason, utils.Truncate(task, detailPreview))
	if _, err := g.store.Append(audit.Entry{
		TaskID:    taskID,
		AgentType: agentType,
		Action:    eventType,
		Details:   details,
		Severity:  audit.SeverityCritical,
		Success:   false,
	}); err != nil {
		return fmt.Errorf("audit safety block: %w", err)
	}
	if err := g.store.LogSafetyEvent(eventType, details, taskID); err != nil {
		return fmt.Errorf("record safety event: %w", err)
	}
	return nil
}
