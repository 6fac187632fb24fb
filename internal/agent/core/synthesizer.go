package core

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Synthesizer condenses a plan's step results into a natural-language
// hypothesis. Failed steps are named in the prompt so the answer degrades
// honestly instead of papering over missing data.
type Synthesizer struct {
	llm    LLMProvider
	model  string
	logger *log.Logger
}

func NewSynthesizer(llm LLMProvider, model string, logger *log.Logger) *Synthesizer {
	return &Synthesizer{llm: llm, model: model, logger: logger}
}

const synthesizePrompt = `You are writing the answer for a biomedical research assistant backed by KEGG pathway and GO annotation data.

User question:
%s

Research objective:
%s

Step outcomes, in execution order:
%s

Write a hypothesis that answers the question using only the data above. Rules:
- Ground every claim in a specific step's data. Do not invent genes, pathways, or numbers.
- If some steps failed, say plainly which part of the question the remaining data cannot answer.
- State the hypothesis as such, not as established fact.
- Suggest up to three follow-up questions the user could ask next, grounded in the data.

Respond with a JSON object:
{"hypothesis": "the answer", "follow_ups": ["question", ...]}`

type synthesisDraft struct {
	Hypothesis string   `json:"hypothesis"`
	FollowUps  []string `json:"follow_ups"`
}

// Synthesize produces a hypothesis from the step results. When at least one
// step succeeded the returned hypothesis text is never empty.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, plan Plan, results []StepResult) (Hypothesis, error) {
	outcomes := renderOutcomes(plan, results)
	prompt := fmt.Sprintf(synthesizePrompt, question, plan.Objective, outcomes)

	resp, err := s.llm.Generate(ctx, prompt, s.model, map[string]interface{}{"json": true})
	if err != nil {
		s.logger.Printf("[SYNTH] oracle failed: %v", err)
		return s.fallback(results), nil
	}

	var draft synthesisDraft
	if derr := DecodeOracleJSON(resp, &draft); derr != nil {
		// A non-JSON reply that still reads as an answer is better than
		// discarding the oracle's work.
		text := strings.TrimSpace(CleanOracleResponse(resp))
		if text != "" {
			return Hypothesis{Text: text}, nil
		}
		s.logger.Printf("[SYNTH] unreadable response: %v", derr)
		return s.fallback(results), nil
	}
	if strings.TrimSpace(draft.Hypothesis) == "" {
		return s.fallback(results), nil
	}
	return Hypothesis{Text: draft.Hypothesis, FollowUps: draft.FollowUps}, nil
}

// fallback builds a plain summary of the successful steps so the user still
// sees the gathered data when the oracle cannot write the hypothesis.
func (s *Synthesizer) fallback(results []StepResult) Hypothesis {
	var succeeded, failed []StepResult
	for _, r := range results {
		if r.Success {
			succeeded = append(succeeded, r)
		} else {
			failed = append(failed, r)
		}
	}
	if len(succeeded) == 0 {
		return Hypothesis{Text: "I could not gather any usable data for this question, so I cannot offer a hypothesis. Rephrasing the question or narrowing it to a specific gene or pathway may help."}
	}

	var b strings.Builder
	b.WriteString("I could not compose a full hypothesis, but here is what the data shows:\n")
	for _, r := range succeeded {
		fmt.Fprintf(&b, "- %s returned: %s\n", r.Tool, previewPayload(r.Payload, 500))
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "%d step(s) failed, so parts of the question remain unanswered.\n", len(failed))
	}
	return Hypothesis{Text: b.String()}
}

func renderOutcomes(plan Plan, results []StepResult) string {
	if len(results) == 0 {
		return "(no steps ran)"
	}
	var b strings.Builder
	for _, r := range results {
		objective := ""
		if r.StepIndex < len(plan.Steps) {
			objective = plan.Steps[r.StepIndex].Objective
		}
		if r.Success {
			fmt.Fprintf(&b, "step %d (%s) \"%s\" succeeded with data: %s\n",
				r.StepIndex+1, r.Tool, objective, previewPayload(r.Payload, 3000))
		} else {
			fmt.Fprintf(&b, "step %d (%s) \"%s\" FAILED: %v\n", r.StepIndex+1, r.Tool, objective, r.Err)
		}
	}
	return b.String()
}

func previewPayload(p Payload, limit int) string {
	s := fmt.Sprintf("%v", p)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
