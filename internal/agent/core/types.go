package core

import (
	"context"
	"time"
)

// Mode is the operating mode chosen for a turn.
type Mode string

const (
	ModeConversational Mode = "conversational"
	ModeResearch       Mode = "research"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerSystem Speaker = "system"
)

// Turn is one utterance in a session, immutable once appended.
// Research-mode system turns carry the plan and step results that produced them.
type Turn struct {
	ID        string       `json:"id"`
	Speaker   Speaker      `json:"speaker"`
	Text      string       `json:"text"`
	Mode      Mode         `json:"mode,omitempty"`
	Plan      *Plan        `json:"plan,omitempty"`
	Results   []StepResult `json:"results,omitempty"`
	FollowUps []string     `json:"follow_ups,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Plan is an ordered sequence of tool-routed sub-queries.
type Plan struct {
	ID        string     `json:"id"`
	Objective string     `json:"objective"`
	Steps     []PlanStep `json:"steps"`
	CreatedAt time.Time  `json:"created_at"`
}

// PlanStep routes one sub-query to a registered tool by name.
type PlanStep struct {
	Objective string `json:"objective"`
	Tool      string `json:"tool"`
}

// Payload is a tool-specific structured success payload (rows, a scalar, a
// graph fragment).
type Payload map[string]interface{}

// StepResult is the outcome of executing one plan step. Results are
// position-aligned with the plan's steps.
type StepResult struct {
	StepIndex int             `json:"step_index"`
	Tool      string          `json:"tool"`
	Success   bool            `json:"success"`
	Payload   Payload         `json:"payload,omitempty"`
	Err       *StepError      `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
	Log       []AttemptRecord `json:"log,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AttemptRecord captures one generate/execute/reflect attempt inside an
// adapter's bounded retry loop.
type AttemptRecord struct {
	Attempt    int    `json:"attempt"`
	Query      string `json:"query,omitempty"`
	Outcome    string `json:"outcome"`
	Accepted   bool   `json:"accepted"`
	Reflection string `json:"reflection,omitempty"`
}

// Hypothesis is the synthesized answer for a research-mode turn.
type Hypothesis struct {
	Text      string   `json:"text"`
	FollowUps []string `json:"follow_ups,omitempty"`
}

// ToolRequest carries an expanded sub-query to a backend tool adapter. Prior
// holds the step results already recorded for this plan, in order, so
// dependent tools can consume earlier data.
type ToolRequest struct {
	Instructions string
	GoalTemplate string
	Prior        []StepResult
}

// ToolResponse is the adapter-side outcome of answering a sub-query.
type ToolResponse struct {
	Payload  Payload
	Attempts int
	Log      []AttemptRecord
}

// Toolbox is the closed set of backend capabilities. Dispatch is explicit:
// one method per capability kind, no open-ended reflection.
type Toolbox interface {
	GraphQuery(ctx context.Context, req ToolRequest) (ToolResponse, *StepError)
	TabularQuery(ctx context.Context, req ToolRequest) (ToolResponse, *StepError)
	GraphAnalysis(ctx context.Context, req ToolRequest) (ToolResponse, *StepError)
}

// LLMProvider is the oracle interface. Output must be treated as possibly
// malformed on every call.
type LLMProvider interface {
	// Generate generates text using the oracle
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns input/output token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetAvailableModels returns configured model keys
	GetAvailableModels() []string

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// Session is one conversation's state: ordered turns plus the active mode.
// Implementations own TTL and eviction.
type Session interface {
	ID() string
	Mode() Mode
	SetMode(mode Mode)
	Append(ctx context.Context, turn Turn) error
	// History returns up to limit most recent turns in chronological order.
	// limit <= 0 returns everything retained.
	History(limit int) []Turn
	// Recall returns up to k earlier turns relevant to the query, best first.
	Recall(query string, k int) []Turn
	Clear(ctx context.Context) error
}

// SessionStore manages sessions across turns.
type SessionStore interface {
	Ensure(ctx context.Context, id string) (Session, error)
	Get(ctx context.Context, id string) (Session, bool, error)
}

// TurnArchive persists completed research turns for later inspection.
type TurnArchive interface {
	SaveResearchTurn(ctx context.Context, sessionID string, objective string, turn Turn) error
}
