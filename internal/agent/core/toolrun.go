package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// GeneratedQuery is a single oracle-produced query candidate.
type GeneratedQuery struct {
	Query       string `json:"query"`
	Explanation string `json:"explanation"`
}

// GenerateFunc produces a query candidate for the request. The reflection
// argument carries feedback from the previous failed attempt, empty on the
// first attempt.
type GenerateFunc func(ctx context.Context, req ToolRequest, reflection string) (GeneratedQuery, *StepError)

// ExecuteFunc runs a generated query against the backend.
type ExecuteFunc func(ctx context.Context, q GeneratedQuery) (Payload, *StepError)

// ToolRunner drives the generate, execute, reflect loop that every tool
// adapter shares. Retryable failures feed their message back into the next
// generation attempt; fatal failures abort immediately.
type ToolRunner struct {
	Name     string
	LLM      LLMProvider
	Model    string
	Attempts int
	Logger   *log.Logger
}

const reflectionPrompt = `You are reviewing the result of a data query made as part of a biomedical research step.

Step objective:
%s

Expected result shape:
%s

Query that was run:
%s

Result (may be truncated):
%s

Decide whether the result satisfies the step objective. An empty result is acceptable only when the objective plausibly has no matching data. Respond with a JSON object:
{"acceptance": true/false, "reflection": "if not accepted, what the next query should do differently"}`

type reflectionVerdict struct {
	Acceptance bool   `json:"acceptance"`
	Reflection string `json:"reflection"`
}

// Run executes the bounded retry loop. The returned attempt log records every
// candidate query and its outcome, accepted or not.
func (r *ToolRunner) Run(ctx context.Context, req ToolRequest, gen GenerateFunc, exec ExecuteFunc) (ToolResponse, *StepError) {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 3
	}

	var (
		logRecords []AttemptRecord
		reflection string
		lastErr    *StepError
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ToolResponse{Attempts: attempt - 1, Log: logRecords},
				NewStepError(KindQueryTimeout, "%s cancelled: %v", r.Name, err)
		}

		q, genErr := gen(ctx, req, reflection)
		if genErr != nil {
			logRecords = append(logRecords, AttemptRecord{Attempt: attempt, Outcome: genErr.Error()})
			if !genErr.Retryable() {
				return ToolResponse{Attempts: attempt, Log: logRecords}, genErr
			}
			reflection = genErr.Message
			lastErr = genErr
			continue
		}
		r.Logger.Printf("[%s] attempt %d query: %s", r.Name, attempt, q.Query)

		payload, execErr := exec(ctx, q)
		if execErr != nil {
			logRecords = append(logRecords, AttemptRecord{Attempt: attempt, Query: q.Query, Outcome: execErr.Error()})
			if !execErr.Retryable() {
				return ToolResponse{Attempts: attempt, Log: logRecords}, execErr
			}
			r.Logger.Printf("[%s] attempt %d failed: %v", r.Name, attempt, execErr)
			reflection = execErr.Message
			lastErr = execErr
			continue
		}

		verdict := r.reflect(ctx, req, q, payload)
		record := AttemptRecord{
			Attempt:    attempt,
			Query:      q.Query,
			Outcome:    "executed",
			Accepted:   verdict.Acceptance,
			Reflection: verdict.Reflection,
		}
		logRecords = append(logRecords, record)
		if verdict.Acceptance {
			return ToolResponse{Payload: payload, Attempts: attempt, Log: logRecords}, nil
		}
		r.Logger.Printf("[%s] attempt %d rejected on reflection: %s", r.Name, attempt, verdict.Reflection)
		reflection = verdict.Reflection
		lastErr = NewStepError(KindQuerySyntax, "result rejected: %s", verdict.Reflection)
	}

	if lastErr == nil {
		lastErr = NewStepError(KindQuerySyntax, "%s: no acceptable result after %d attempts", r.Name, attempts)
	}
	return ToolResponse{Attempts: attempts, Log: logRecords}, lastErr
}

// reflect asks the oracle whether the result satisfies the step objective.
// Oracle failures here accept the result rather than discard real data.
func (r *ToolRunner) reflect(ctx context.Context, req ToolRequest, q GeneratedQuery, payload Payload) reflectionVerdict {
	preview, err := json.Marshal(payload)
	if err != nil {
		preview = []byte(fmt.Sprintf("%v", payload))
	}
	const previewLimit = 4000
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}

	prompt := fmt.Sprintf(reflectionPrompt, req.Instructions, req.GoalTemplate, q.Query, string(preview))
	resp, oerr := r.LLM.Generate(ctx, prompt, r.Model, map[string]interface{}{"json": true})
	if oerr != nil {
		r.Logger.Printf("[%s] reflection oracle failed, accepting result: %v", r.Name, oerr)
		return reflectionVerdict{Acceptance: true}
	}
	var verdict reflectionVerdict
	if derr := DecodeOracleJSON(resp, &verdict); derr != nil {
		r.Logger.Printf("[%s] reflection response unreadable, accepting result: %v", r.Name, derr)
		return reflectionVerdict{Acceptance: true}
	}
	return verdict
}
