package agent

import (
	"context"
	"fmt"
	"strings"
)

// Stage is one step of an agent pipeline. Run transforms the task state and
// returns the stage's output artifact; its only side effects are the
// state mutations the executor applies (stageOutputs, progress).
type Stage struct {
	Name string
	Role Role
	Run  func(ctx context.Context, ex *Executor, st *State) (string, error)

	// OnFailure, when set, runs before the pipeline terminates on this
	// stage's error. Elon's test stage uses it to feed the circuit breaker.
	OnFailure func(ex *Executor, st *State) error
}

// PipelineFor returns the fixed stage sequence for an agent type. Every
// pipeline is a straight line: stages run in declared order with no
// branching.
func PipelineFor(t Type) ([]Stage, bool) {
	switch t {
	case TypeEcho:
		return echoPipeline, true
	case TypeElon:
		return elonPipeline, true
	case TypeHenry:
		return henryPipeline, true
	}
	return nil, false
}

var echoPipeline = []Stage{
	{
		Name: "parse-intent",
		Role: RoleEcho,
		Run: func(ctx context.Context, ex *Executor, st *State) (string, error) {
			prompt := fmt.Sprintf(`As Echo, parse the following request and split it into tasks:

Request: %s

Break it down into:
1. Tech_Task: the technical work (for Elon)
2. Market_Task: the market-facing work (for Henry)

Format:
Tech_Task: [description]
Market_Task: [description]`, st.Task)
			return ex.generate(ctx, RoleEcho, prompt, st)
		},
	},
	{
		Name: "dispatch",
		Role: RoleEcho,
		Run: func(ctx context.Context, ex *Executor, st *State) (string, error) {
			// Local bookkeeping stage, no generation.
			return "tasks dispatched for execution", nil
		},
	},
	{
		Name: "monitor",
		Role: RoleEcho,
		Run: func(ctx context.Context, ex *Executor, st *State) (string, error) {
			return "monitoring task execution", nil
		},
	},
	{
		Name: "report",
		Role: RoleEcho,
		Run: func(ctx context.Context, ex *Executor, st *State) (string, error) {
			return buildEchoReport(st), nil
		},
	},
}

var elonPipeline = []Stage{
	{
		Name: "architect",
		Role: RoleArchitect,
		Run: func(ctx context.Context, ex *Executor, st *State) (string, error) {
			prompt := fmt.Sprintf(`As Elon's architect, design a technical solution for this task:

Task: %s

Provide:
1. Stack selection
2. Module architecture
3. API definitions
4. Data model`, st.Task)
			return ex.generate(ctx, RoleArchitect, prompt, st)
		},
	},
	{
		Name: "code",
		Role: RoleCoder,
		Run: func(ctx context.Context, ex *Executor, st *State) (string, error) {
			prompt := fmt.Sprintf(`As Elon's coder, implement the following design:

Task: %s

Architecture:
%s

Provide a complete implementation.`, st.Task, st.StageOutputs["architect"])
			return ex.generate(ctx, RoleCoder, prompt, st)
		},
	},
	{
		Name: "test",
		Role: RoleQA,
		Run: func(ctx context.Context, ex *Executor, st *State) (string, error) {
			prompt := fmt.Sprintf(`As Elon's QA engineer, test the following code:

%s

Provide:
1. Unit tests
2. Test cases
3. Expected results`, st.StageOutputs["code"])
			return ex.generate(ctx, RoleQA, prompt, st)
		},
		// A test-stage failure feeds the circuit breaker before the run
		// terminates; three of them trip it.
		OnFailure: func(ex *Executor, st *State) error {
			return ex.limiter.RecordFailure(string(st.AgentType))
		},
	},
	{
		Name: "review",
		Role: RoleReviewer,
		Run: func(ctx context.Context, ex *Executor, st *State) (string, error) {
			prompt := fmt.Sprintf(`As Elon's reviewer, review the following code and tests:

Code:
%s

Tests:
%s

Provide review findings and suggested improvements.`, st.StageOutputs["code"], st.StageOutputs["test"])
			return ex.generate(ctx, RoleReviewer, prompt, st)
		},
	},
}

var henryPipeline = []Stage{
	{
		Name: "research",
		Role: RoleResearcher,
		Run: func(ctx context.Context, ex *Executor, st *State) (string, error) {
			prompt := fmt.Sprintf(`As Henry's researcher, investigate the following:

Task: %s

Provide:
1. Related open-source projects
2. Community discussion themes
3. Comparable implementations
4. Market opportunities`, st.Task)
			return ex.generate(ctx, RoleResearcher, prompt, st)
		},
	},
	{
		Name: "write",
		Role: RoleWriter,
		Run: func(ctx context.Context, ex *Executor, st *State) (string, error) {
			prompt := fmt.Sprintf(`As Henry's writer, create content from this research:

Research:
%s

Task: %s

Provide:
1. PR description
2. Release notes
3. Community post
4. Blog article`, st.StageOutputs["research"], st.Task)
			return ex.generate(ctx, RoleWriter, prompt, st)
		},
	},
	{
		Name: "network-interact",
		Role: RoleNetworker,
		Run: func(ctx context.Context, ex *Executor, st *State) (string, error) {
			// Interaction content mentions community members, so the daily
			// mention budget is checked before anything is emitted.
			ok, reason, err := ex.limiter.AllowMention(string(st.AgentType))
			if err != nil {
				return "", err
			}
			if !ok {
				return "", fmt.Errorf("mention budget exhausted: %s", reason)
			}
			prompt := fmt.Sprintf(`As Henry's networker, prepare community interaction content:

Task: %s
Content:
%s

Provide:
1. Engagement strategy
2. Reply templates
3. Mention suggestions
4. Cautions`, st.Task, st.StageOutputs["write"])
			return ex.generate(ctx, RoleNetworker, prompt, st)
		},
	},
}

// buildEchoReport assembles the completion report from earlier stage
// outputs, as the final stage of Echo's pipeline.
func buildEchoReport(st *State) string {
	var b strings.Builder
	b.WriteString("Task execution report\n")
	b.WriteString("=====================\n\n")
	fmt.Fprintf(&b, "Request: %s\n", st.Task)
	if intent, ok := st.StageOutputs["parse-intent"]; ok {
		b.WriteString("\nPlanned work:\n")
		b.WriteString(intent)
		b.WriteString("\n")
	}
	b.WriteString("\nStatus: all stages completed\n")
	return b.String()
}
