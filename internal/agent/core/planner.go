package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/biocortex/hypothesis/internal/agent/telemetry"
	"github.com/biocortex/hypothesis/internal/capability"
)

// Planner turns a research objective into an ordered, tool-routed plan.
// Generation is bounded: after the configured attempts it gives up with a
// PlanGenerationError rather than emitting a plan it could not validate.
type Planner struct {
	llm       LLMProvider
	model     string
	registry  *capability.Registry
	attempts  int
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewPlanner(llm LLMProvider, model string, registry *capability.Registry, attempts int, tel *telemetry.Telemetry, logger *log.Logger) *Planner {
	if attempts <= 0 {
		attempts = 3
	}
	return &Planner{llm: llm, model: model, registry: registry, attempts: attempts, telemetry: tel, logger: logger}
}

const planPrompt = `You are planning backend data work for a biomedical research assistant.

Research objective:
%s

User question:
%s

Relevant earlier conversation:
%s

Available tools:
%s

Decompose the objective into an ordered list of sub-queries, each routed to exactly one tool by name. Rules:
- Every step's "tool" must be one of the tool names listed above, verbatim.
- When more than one tool could serve a step, pick the most specific one for that data need.
- Steps run in order. A graph analysis step needs an earlier graph query step that surfaces the node and pathway it will analyze.
- Keep the plan minimal. One step is fine when one tool answers the objective.
%s
Respond with a JSON object:
{"plan": [{"objective": "what this step must find out", "tool": "tool name"}]}`

const planReviewPrompt = `You proposed this plan for the research objective below. Review it once.

Research objective:
%s

Proposed plan:
%s

Available tools:
%s

Check that the steps, in order, are sufficient to meet the objective, that no step is redundant, and that each step is routed to the right tool. Respond with a JSON object:
{"acceptance": true/false, "reflection": "if not accepted, what to change"}`

type planDraft struct {
	Plan []PlanStep `json:"plan"`
}

// Plan generates and validates a plan for the objective. The returned error is
// a *PlanGenerationError when every attempt failed.
func (p *Planner) Plan(ctx context.Context, question, objective string, history []Turn) (Plan, error) {
	var feedback string
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Plan{}, &PlanGenerationError{Reason: fmt.Sprintf("cancelled: %v", err)}
		}

		draft, reason := p.generate(ctx, question, objective, history, feedback)
		if reason != "" {
			p.logger.Printf("[PLANNER] attempt %d rejected: %s", attempt, reason)
			feedback = reason
			continue
		}

		if verdict := p.review(ctx, objective, draft); !verdict.Acceptance {
			p.logger.Printf("[PLANNER] attempt %d failed review: %s", attempt, verdict.Reflection)
			feedback = verdict.Reflection
			continue
		}

		plan := Plan{
			ID:        uuid.New().String(),
			Objective: objective,
			Steps:     draft,
			CreatedAt: time.Now().UTC(),
		}
		p.telemetry.RecordPlan(len(plan.Steps))
		return plan, nil
	}
	return Plan{}, &PlanGenerationError{Reason: fmt.Sprintf("no valid plan after %d attempts: %s", p.attempts, feedback)}
}

// generate asks the oracle for a plan draft and validates it structurally.
// A non-empty reason means the draft was rejected.
func (p *Planner) generate(ctx context.Context, question, objective string, history []Turn, feedback string) ([]PlanStep, string) {
	var feedbackBlock string
	if feedback != "" {
		feedbackBlock = fmt.Sprintf("Your previous plan was rejected: %s\n", feedback)
	}
	prompt := fmt.Sprintf(planPrompt, objective, question, renderHistory(history), p.registry.PromptBlock(), feedbackBlock)

	resp, err := p.llm.Generate(ctx, prompt, p.model, map[string]interface{}{"json": true})
	if err != nil {
		return nil, fmt.Sprintf("oracle failed: %v", err)
	}

	var draft planDraft
	if derr := DecodeOracleJSON(resp, &draft); derr != nil {
		return nil, fmt.Sprintf("unreadable plan: %v", derr)
	}
	if len(draft.Plan) == 0 {
		return nil, "plan has no steps"
	}
	for i, step := range draft.Plan {
		if strings.TrimSpace(step.Objective) == "" {
			return nil, fmt.Sprintf("step %d has an empty objective", i+1)
		}
		if _, ok := p.registry.Resolve(step.Tool); !ok {
			return nil, fmt.Sprintf("step %d routed to unknown tool %q", i+1, step.Tool)
		}
	}
	return draft.Plan, ""
}

// review runs one oracle self-check over a structurally valid draft. Review
// failures accept the draft; validation already passed and a broken reviewer
// should not block planning.
func (p *Planner) review(ctx context.Context, objective string, steps []PlanStep) reflectionVerdict {
	var b strings.Builder
	for i, step := range steps {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, step.Tool, step.Objective)
	}
	prompt := fmt.Sprintf(planReviewPrompt, objective, b.String(), p.registry.PromptBlock())

	resp, err := p.llm.Generate(ctx, prompt, p.model, map[string]interface{}{"json": true})
	if err != nil {
		p.logger.Printf("[PLANNER] review oracle failed, accepting draft: %v", err)
		return reflectionVerdict{Acceptance: true}
	}
	var verdict reflectionVerdict
	if derr := DecodeOracleJSON(resp, &verdict); derr != nil {
		p.logger.Printf("[PLANNER] review response unreadable, accepting draft: %v", derr)
		return reflectionVerdict{Acceptance: true}
	}
	return verdict
}
