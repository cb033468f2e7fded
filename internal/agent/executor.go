package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hivemindhq/hivemind/internal/audit"
	"github.com/hivemindhq/hivemind/internal/ratelimit"
	"github.com/hivemindhq/hivemind/internal/utils"
)

// Generator is the external generation service a pipeline stage calls:
// prompt in, text out. Failures (including collaborator timeouts) surface
// to the calling stage as errors.
type Generator interface {
	Generate(ctx context.Context, role Role, prompt string) (string, error)
}

const (
	// maxErrorRunes bounds the error text stored on a failed run.
	maxErrorRunes = 500
	// summaryRunes bounds the per-stage output summary in audit entries.
	summaryRunes = 80
)

// Executor runs an agent's fixed stage sequence over a task-state record.
// Admission (gatekeeper and limiter) must already have passed; the executor
// does not re-check it.
type Executor struct {
	gen     Generator
	limiter *ratelimit.Limiter
	store   *audit.Store
}

// NewExecutor creates a pipeline executor.
func NewExecutor(gen Generator, limiter *ratelimit.Limiter, store *audit.Store) *Executor {
	return &Executor{gen: gen, limiter: limiter, store: store}
}

// Run executes the pipeline for st.AgentType, mutating st in place. Stages
// run strictly in declared order; the first stage error terminates the run
// with status failed. The executor never retries; retry policy belongs to
// the caller.
func (e *Executor) Run(ctx context.Context, st *State) error {
	stages, ok := PipelineFor(st.AgentType)
	if !ok {
		return fmt.Errorf("no pipeline for agent type %s", st.AgentType)
	}

	st.Update(func(s *State) {
		s.Status = StatusRunning
		s.Progress = 0
		s.StartedAt = time.Now().UTC()
	})

	for i, stage := range stages {
		out, err := stage.Run(ctx, e, st)
		if err != nil {
			return e.failStage(st, stage, err)
		}

		st.Update(func(s *State) {
			s.StageOutputs[stage.Name] = out
			s.advance((i + 1) * 100 / len(stages))
		})

		id, err := e.store.Append(audit.Entry{
			TaskID:    st.TaskID,
			AgentType: string(st.AgentType),
			Action:    "stage_completed",
			Details:   fmt.Sprintf("%s: %s", stage.Name, utils.Truncate(utils.FirstLine(out), summaryRunes)),
			Severity:  audit.SeverityInfo,
			Success:   true,
		})
		if err != nil {
			return e.failStage(st, stage, fmt.Errorf("audit stage completion: %w", err))
		}
		st.Update(func(s *State) { s.AuditTrail = append(s.AuditTrail, id) })
	}

	st.Update(func(s *State) {
		s.Status = StatusCompleted
		s.Progress = 100
		s.EndedAt = time.Now().UTC()
	})

	id, err := e.store.Append(audit.Entry{
		TaskID:    st.TaskID,
		AgentType: string(st.AgentType),
		Action:    "pipeline_completed",
		Details:   fmt.Sprintf("%d stages in %s", len(stages), st.EndedAt.Sub(st.StartedAt).Round(time.Millisecond)),
		Severity:  audit.SeverityInfo,
		Success:   true,
	})
	if err != nil {
		return fmt.Errorf("audit pipeline completion: %w", err)
	}
	st.Update(func(s *State) { s.AuditTrail = append(s.AuditTrail, id) })
	return nil
}

// failStage records a stage failure and puts the run into its terminal
// failed state. The stage's failure hook (if any) runs first, so breaker
// counters are updated before the error propagates.
func (e *Executor) failStage(st *State, stage Stage, cause error) error {
	if stage.OnFailure != nil {
		if err := stage.OnFailure(e, st); err != nil {
			slog.Warn("stage failure hook failed", "task", st.TaskID, "stage", stage.Name, "error", err)
		}
	}

	st.Update(func(s *State) {
		s.Status = StatusFailed
		s.EndedAt = time.Now().UTC()
		s.Error = utils.Truncate(cause.Error(), maxErrorRunes)
	})

	id, aerr := e.store.Append(audit.Entry{
		TaskID:    st.TaskID,
		AgentType: string(st.AgentType),
		Action:    "stage_failed",
		Details:   fmt.Sprintf("%s: %s", stage.Name, st.Error),
		Severity:  audit.SeverityCritical,
		Success:   false,
	})
	if aerr != nil {
		return errors.Join(fmt.Errorf("stage %s: %w", stage.Name, cause), fmt.Errorf("audit stage failure: %w", aerr))
	}
	st.Update(func(s *State) { s.AuditTrail = append(s.AuditTrail, id) })
	return fmt.Errorf("stage %s: %w", stage.Name, cause)
}

// generate calls the generation service and charges the estimated usage
// against the daily token quota. A quota denial fails the stage.
func (e *Executor) generate(ctx context.Context, role Role, prompt string, st *State) (string, error) {
	out, err := e.gen.Generate(ctx, role, prompt)
	if err != nil {
		return "", fmt.Errorf("generate as %s: %w", role, err)
	}

	ok, reason, err := e.limiter.ReserveTokens(string(st.AgentType), EstimateTokens(prompt)+EstimateTokens(out))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New(reason)
	}
	return out, nil
}

// EstimateTokens is a coarse usage heuristic: about four characters per
// token, minimum one.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s) / 4
	if n < 1 {
		n = 1
	}
	return n
}
