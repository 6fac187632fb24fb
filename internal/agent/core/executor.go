package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/biocortex/hypothesis/internal/agent/telemetry"
	"github.com/biocortex/hypothesis/internal/capability"
)

// Executor walks a plan's steps in order and dispatches each to its tool.
// A step failure is recorded and the walk continues; later steps that depend
// on the failed data surface their own errors.
type Executor struct {
	toolbox   Toolbox
	registry  *capability.Registry
	llm       LLMProvider
	model     string
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewExecutor(toolbox Toolbox, registry *capability.Registry, llm LLMProvider, model string, tel *telemetry.Telemetry, logger *log.Logger) *Executor {
	return &Executor{toolbox: toolbox, registry: registry, llm: llm, model: model, telemetry: tel, logger: logger}
}

const instructPrompt = `You are preparing one step of a biomedical research plan for execution.

Overall objective:
%s

Step objective:
%s

Data already gathered by earlier steps:
%s

Rewrite the step objective as precise instructions for the tool that will run it, resolving references to earlier results into concrete names and values. Also describe the shape of result that would satisfy the step. Respond with a JSON object:
{"instructions": "precise instructions", "goal_template": "expected result shape"}`

type stepBrief struct {
	Instructions string `json:"instructions"`
	GoalTemplate string `json:"goal_template"`
}

// Execute runs the plan sequentially. The returned results are
// position-aligned with the plan's steps up to the point reached.
func (e *Executor) Execute(ctx context.Context, plan Plan) []StepResult {
	results := make([]StepResult, 0, len(plan.Steps))

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			results = append(results, StepResult{
				StepIndex: i,
				Tool:      step.Tool,
				Err:       NewStepError(KindQueryTimeout, "step cancelled: %v", err),
				CreatedAt: time.Now().UTC(),
			})
			e.telemetry.RecordStep(step.Tool, false, 0)
			return results
		}

		desc, ok := e.registry.Resolve(step.Tool)
		if !ok {
			e.logger.Printf("[EXECUTOR] step %d names unregistered tool %q, rejecting without dispatch", i+1, step.Tool)
			results = append(results, StepResult{
				StepIndex: i,
				Tool:      step.Tool,
				Err:       NewStepError(KindPlanGeneration, "tool %q is not registered", step.Tool),
				CreatedAt: time.Now().UTC(),
			})
			e.telemetry.RecordStep(step.Tool, false, 0)
			continue
		}

		req := ToolRequest{Prior: append([]StepResult(nil), results...)}
		req.Instructions, req.GoalTemplate = e.brief(ctx, plan.Objective, step, results)

		e.logger.Printf("[EXECUTOR] step %d/%d via %s: %s", i+1, len(plan.Steps), desc.Name, req.Instructions)
		resp, stepErr := e.dispatch(ctx, desc.Kind, req)

		result := StepResult{
			StepIndex: i,
			Tool:      step.Tool,
			Success:   stepErr == nil,
			Payload:   resp.Payload,
			Err:       stepErr,
			Attempts:  resp.Attempts,
			Log:       resp.Log,
			CreatedAt: time.Now().UTC(),
		}
		results = append(results, result)
		e.telemetry.RecordStep(step.Tool, result.Success, resp.Attempts)
		if stepErr != nil {
			e.logger.Printf("[EXECUTOR] step %d failed after %d attempts: %v", i+1, resp.Attempts, stepErr)
		}
	}
	return results
}

func (e *Executor) dispatch(ctx context.Context, kind capability.Kind, req ToolRequest) (ToolResponse, *StepError) {
	switch kind {
	case capability.KindGraphQuery:
		return e.toolbox.GraphQuery(ctx, req)
	case capability.KindTabularQuery:
		return e.toolbox.TabularQuery(ctx, req)
	case capability.KindGraphAnalysis:
		return e.toolbox.GraphAnalysis(ctx, req)
	default:
		return ToolResponse{}, NewStepError(KindPlanGeneration, "no dispatch for capability kind %q", kind)
	}
}

// brief expands a step objective into tool instructions grounded in prior
// results. On oracle failure the raw objective passes through unchanged.
func (e *Executor) brief(ctx context.Context, objective string, step PlanStep, prior []StepResult) (string, string) {
	prompt := fmt.Sprintf(instructPrompt, objective, step.Objective, summarizeResults(prior))
	resp, err := e.llm.Generate(ctx, prompt, e.model, map[string]interface{}{"json": true})
	if err != nil {
		e.logger.Printf("[EXECUTOR] briefing oracle failed, using raw objective: %v", err)
		return step.Objective, "flexible"
	}
	var brief stepBrief
	if derr := DecodeOracleJSON(resp, &brief); derr != nil || strings.TrimSpace(brief.Instructions) == "" {
		e.logger.Printf("[EXECUTOR] briefing response unreadable, using raw objective")
		return step.Objective, "flexible"
	}
	if strings.TrimSpace(brief.GoalTemplate) == "" {
		brief.GoalTemplate = "flexible"
	}
	return brief.Instructions, brief.GoalTemplate
}

// summarizeResults renders prior step outcomes for prompt context, trimming
// large payloads.
func summarizeResults(results []StepResult) string {
	if len(results) == 0 {
		return "(none yet)"
	}
	const payloadLimit = 2000
	var b strings.Builder
	for _, r := range results {
		if r.Success {
			preview := fmt.Sprintf("%v", r.Payload)
			if len(preview) > payloadLimit {
				preview = preview[:payloadLimit] + "..."
			}
			fmt.Fprintf(&b, "step %d (%s) succeeded: %s\n", r.StepIndex+1, r.Tool, preview)
		} else {
			fmt.Fprintf(&b, "step %d (%s) failed: %v\n", r.StepIndex+1, r.Tool, r.Err)
		}
	}
	return b.String()
}
