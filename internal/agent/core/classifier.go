package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/biocortex/hypothesis/internal/agent/telemetry"
)

// ModeClassifier decides whether a user turn is small talk or a research
// request. Ambiguity resolves to conversational so the agent never launches
// backend work on an unclear ask.
type ModeClassifier struct {
	llm       LLMProvider
	model     string
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewModeClassifier(llm LLMProvider, model string, tel *telemetry.Telemetry, logger *log.Logger) *ModeClassifier {
	return &ModeClassifier{llm: llm, model: model, telemetry: tel, logger: logger}
}

const classifyPrompt = `You are the front door of a biomedical research assistant backed by a KEGG pathway graph and GO annotation data.

Recent conversation:
%s

Latest user message:
%s

Classify the latest message:
- "research" if it asks a biomedical question the backend data could help answer (genes, pathways, annotations, graph structure), or explicitly asks to investigate something.
- "conversational" for greetings, small talk, questions about the assistant itself, or follow-up chit-chat that needs no data access.

If you are unsure, choose "conversational". Respond with a JSON object:
{"mode": "research" or "conversational", "reason": "one sentence"}`

type modeDecision struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason"`
}

// Classify returns the mode for the given utterance.
func (c *ModeClassifier) Classify(ctx context.Context, history []Turn, utterance string) Mode {
	prompt := fmt.Sprintf(classifyPrompt, renderHistory(history), utterance)
	resp, err := c.llm.Generate(ctx, prompt, c.model, map[string]interface{}{"json": true})
	if err != nil {
		c.logger.Printf("[CLASSIFIER] oracle failed, defaulting to conversational: %v", err)
		c.telemetry.RecordModeDecision("fallback")
		return ModeConversational
	}

	var decision modeDecision
	if derr := DecodeOracleJSON(resp, &decision); derr != nil {
		c.logger.Printf("[CLASSIFIER] unreadable decision, defaulting to conversational: %v", derr)
		c.telemetry.RecordModeDecision("fallback")
		return ModeConversational
	}

	switch strings.ToLower(strings.TrimSpace(decision.Mode)) {
	case "research":
		c.telemetry.RecordModeDecision("research")
		return ModeResearch
	case "conversational":
		c.telemetry.RecordModeDecision("conversational")
		return ModeConversational
	default:
		c.logger.Printf("[CLASSIFIER] unknown mode %q, defaulting to conversational", decision.Mode)
		c.telemetry.RecordModeDecision("fallback")
		return ModeConversational
	}
}

// renderHistory formats recent turns for prompt context.
func renderHistory(history []Turn) string {
	if len(history) == 0 {
		return "(no prior turns)"
	}
	var b strings.Builder
	for _, t := range history {
		fmt.Fprintf(&b, "%s: %s\n", t.Speaker, t.Text)
	}
	return b.String()
}
