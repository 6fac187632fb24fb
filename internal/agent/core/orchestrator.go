package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/biocortex/hypothesis/internal/agent/telemetry"
)

// TurnReply is the orchestrator's answer for one user turn.
type TurnReply struct {
	SessionID string       `json:"session_id"`
	Mode      Mode         `json:"mode"`
	Reply     string       `json:"reply"`
	Plan      *Plan        `json:"plan,omitempty"`
	Results   []StepResult `json:"results,omitempty"`
	FollowUps []string     `json:"follow_ups,omitempty"`
}

// Orchestrator runs the full turn pipeline: classify the utterance, then
// either chat directly or run the research pipeline of plan, execute,
// synthesize. Concurrent turns are bounded by a semaphore.
type Orchestrator struct {
	classifier  *ModeClassifier
	planner     *Planner
	executor    *Executor
	synthesizer *Synthesizer
	llm         LLMProvider
	chatModel   string
	sessions    SessionStore
	archive     TurnArchive
	telemetry   *telemetry.Telemetry
	logger      *log.Logger

	window     int
	recallHits int
	sem        chan struct{}
}

// OrchestratorOptions bundles the orchestrator's collaborators.
type OrchestratorOptions struct {
	Classifier  *ModeClassifier
	Planner     *Planner
	Executor    *Executor
	Synthesizer *Synthesizer
	LLM         LLMProvider
	ChatModel   string
	Sessions    SessionStore
	// Archive may be nil when research-turn persistence is disabled.
	Archive   TurnArchive
	Telemetry *telemetry.Telemetry
	Logger    *log.Logger
	// ContextWindow is how many recent turns feed each prompt.
	ContextWindow int
	// RecallHits is how many older turns keyword recall may add.
	RecallHits int
	// MaxConcurrentTurns bounds in-flight turns across sessions.
	MaxConcurrentTurns int
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = 12
	}
	if opts.MaxConcurrentTurns <= 0 {
		opts.MaxConcurrentTurns = 4
	}
	return &Orchestrator{
		classifier:  opts.Classifier,
		planner:     opts.Planner,
		executor:    opts.Executor,
		synthesizer: opts.Synthesizer,
		llm:         opts.LLM,
		chatModel:   opts.ChatModel,
		sessions:    opts.Sessions,
		archive:     opts.Archive,
		telemetry:   opts.Telemetry,
		logger:      opts.Logger,
		window:      opts.ContextWindow,
		recallHits:  opts.RecallHits,
		sem:         make(chan struct{}, opts.MaxConcurrentTurns),
	}
}

const chatPrompt = `You are a biomedical research assistant backed by a KEGG pathway graph and GO annotation data. You are in casual conversation. Be brief and friendly. If the user seems to want actual research, invite them to ask a concrete biomedical question.

Possibly relevant earlier exchanges:
%s

Recent conversation:
%s

User: %s
Assistant:`

const objectivePrompt = `A user asked a biomedical research assistant the question below. Restate it as a single precise research objective for querying a KEGG pathway graph and GO annotation data. Keep every constraint the user stated. Respond with a JSON object:
{"objective": "the research objective"}

Recent conversation:
%s

Question: %s`

// HandleTurn processes one user utterance and returns the system's reply.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, text string) (TurnReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnReply{}, fmt.Errorf("empty utterance")
	}

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return TurnReply{}, ctx.Err()
	}

	session, err := o.sessions.Ensure(ctx, sessionID)
	if err != nil {
		return TurnReply{}, fmt.Errorf("session: %w", err)
	}

	history := session.History(o.window)
	recalled := o.recall(session, history, text)

	mode := o.classifier.Classify(ctx, history, text)
	o.telemetry.RecordTurn(string(mode))
	session.SetMode(mode)

	userTurn := Turn{
		ID:        uuid.New().String(),
		Speaker:   SpeakerUser,
		Text:      text,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
	if err := session.Append(ctx, userTurn); err != nil {
		return TurnReply{}, fmt.Errorf("append user turn: %w", err)
	}

	var reply TurnReply
	if mode == ModeResearch {
		reply = o.research(ctx, session, history, recalled, text)
	} else {
		reply = o.chat(ctx, history, recalled, text)
	}
	reply.SessionID = session.ID()

	systemTurn := Turn{
		ID:        uuid.New().String(),
		Speaker:   SpeakerSystem,
		Text:      reply.Reply,
		Mode:      reply.Mode,
		Plan:      reply.Plan,
		Results:   reply.Results,
		FollowUps: reply.FollowUps,
		CreatedAt: time.Now().UTC(),
	}
	if err := session.Append(ctx, systemTurn); err != nil {
		return TurnReply{}, fmt.Errorf("append system turn: %w", err)
	}

	if reply.Mode == ModeResearch && reply.Plan != nil && o.archive != nil {
		if err := o.archive.SaveResearchTurn(ctx, session.ID(), reply.Plan.Objective, systemTurn); err != nil {
			o.logger.Printf("[ORCH] archiving research turn failed: %v", err)
		}
	}
	return reply, nil
}

// research runs the full pipeline. Planner exhaustion degrades to a
// conversational apology rather than an error the caller must handle.
func (o *Orchestrator) research(ctx context.Context, session Session, history, recalled []Turn, text string) TurnReply {
	objective := o.setObjective(ctx, history, text)
	o.logger.Printf("[ORCH] session %s research objective: %s", session.ID(), objective)

	plan, err := o.planner.Plan(ctx, text, objective, append(append([]Turn(nil), recalled...), history...))
	if err != nil {
		o.logger.Printf("[ORCH] planning failed: %v", err)
		return TurnReply{
			Mode:  ModeConversational,
			Reply: "I wasn't able to work out a research plan for that question. Could you rephrase it, or narrow it to a specific gene, pathway, or annotation?",
		}
	}

	results := o.executor.Execute(ctx, plan)
	hypothesis, err := o.synthesizer.Synthesize(ctx, text, plan, results)
	if err != nil {
		o.logger.Printf("[ORCH] synthesis failed: %v", err)
		hypothesis = Hypothesis{Text: "I gathered data for your question but could not compose the final answer. Please try again."}
	}

	return TurnReply{
		Mode:      ModeResearch,
		Reply:     hypothesis.Text,
		Plan:      &plan,
		Results:   results,
		FollowUps: hypothesis.FollowUps,
	}
}

func (o *Orchestrator) chat(ctx context.Context, history, recalled []Turn, text string) TurnReply {
	prompt := fmt.Sprintf(chatPrompt, renderHistory(recalled), renderHistory(history), text)
	resp, err := o.llm.Generate(ctx, prompt, o.chatModel, map[string]interface{}{})
	if err != nil {
		o.logger.Printf("[ORCH] chat oracle failed: %v", err)
		return TurnReply{Mode: ModeConversational, Reply: "Sorry, I'm having trouble responding right now. Please try again."}
	}
	return TurnReply{Mode: ModeConversational, Reply: strings.TrimSpace(CleanOracleResponse(resp))}
}

// setObjective restates the question as a research objective. On oracle
// failure the raw question serves as the objective.
func (o *Orchestrator) setObjective(ctx context.Context, history []Turn, text string) string {
	prompt := fmt.Sprintf(objectivePrompt, renderHistory(history), text)
	resp, err := o.llm.Generate(ctx, prompt, o.chatModel, map[string]interface{}{"json": true})
	if err != nil {
		o.logger.Printf("[ORCH] objective oracle failed, using question verbatim: %v", err)
		return text
	}
	var out struct {
		Objective string `json:"objective"`
	}
	if derr := DecodeOracleJSON(resp, &out); derr != nil || strings.TrimSpace(out.Objective) == "" {
		return text
	}
	return out.Objective
}

// recall pulls older relevant turns that fell out of the context window,
// skipping anything already in the window.
func (o *Orchestrator) recall(session Session, history []Turn, query string) []Turn {
	if o.recallHits <= 0 {
		return nil
	}
	inWindow := make(map[string]bool, len(history))
	for _, t := range history {
		inWindow[t.ID] = true
	}
	var out []Turn
	for _, t := range session.Recall(query, o.recallHits) {
		if !inWindow[t.ID] {
			out = append(out, t)
		}
	}
	return out
}
