package core

import (
	"context"
	"testing"
)

func runnerForTest(llm LLMProvider, attempts int) *ToolRunner {
	return &ToolRunner{Name: "test", LLM: llm, Model: "test", Attempts: attempts, Logger: testLogger()}
}

func acceptingLLM() *stubLLM {
	return &stubLLM{responses: []string{`{"acceptance": true}`}}
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	r := runnerForTest(acceptingLLM(), 3)
	req := ToolRequest{Instructions: "find genes", GoalTemplate: "rows"}

	gen := func(ctx context.Context, req ToolRequest, reflection string) (GeneratedQuery, *StepError) {
		return GeneratedQuery{Query: "MATCH (n) RETURN n"}, nil
	}
	exec := func(ctx context.Context, q GeneratedQuery) (Payload, *StepError) {
		return Payload{"count": 3}, nil
	}

	resp, err := r.Run(context.Background(), req, gen, exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", resp.Attempts)
	}
	if len(resp.Log) != 1 || !resp.Log[0].Accepted {
		t.Fatalf("attempt log wrong: %+v", resp.Log)
	}
}

func TestRunRetryableErrorFeedsReflection(t *testing.T) {
	r := runnerForTest(acceptingLLM(), 3)

	var reflections []string
	gen := func(ctx context.Context, req ToolRequest, reflection string) (GeneratedQuery, *StepError) {
		reflections = append(reflections, reflection)
		return GeneratedQuery{Query: "q"}, nil
	}
	calls := 0
	exec := func(ctx context.Context, q GeneratedQuery) (Payload, *StepError) {
		calls++
		if calls == 1 {
			return nil, NewStepError(KindQuerySyntax, "unknown label Gene")
		}
		return Payload{"ok": true}, nil
	}

	resp, err := r.Run(context.Background(), ToolRequest{}, gen, exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", resp.Attempts)
	}
	if reflections[0] != "" || reflections[1] != "unknown label Gene" {
		t.Fatalf("error message did not feed the retry: %v", reflections)
	}
}

func TestRunFatalErrorAbortsImmediately(t *testing.T) {
	r := runnerForTest(acceptingLLM(), 3)

	gen := func(ctx context.Context, req ToolRequest, reflection string) (GeneratedQuery, *StepError) {
		return GeneratedQuery{Query: "q"}, nil
	}
	calls := 0
	exec := func(ctx context.Context, q GeneratedQuery) (Payload, *StepError) {
		calls++
		return nil, NewStepError(KindConnection, "store down")
	}

	_, err := r.Run(context.Background(), ToolRequest{}, gen, exec)
	if err == nil || err.Kind != KindConnection {
		t.Fatalf("expected connection error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("fatal error retried %d times", calls)
	}
}

func TestRunBoundedAttempts(t *testing.T) {
	r := runnerForTest(acceptingLLM(), 3)

	gen := func(ctx context.Context, req ToolRequest, reflection string) (GeneratedQuery, *StepError) {
		return GeneratedQuery{Query: "q"}, nil
	}
	calls := 0
	exec := func(ctx context.Context, q GeneratedQuery) (Payload, *StepError) {
		calls++
		return nil, NewStepError(KindQuerySyntax, "always broken")
	}

	_, err := r.Run(context.Background(), ToolRequest{}, gen, exec)
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestRunReflectionRejectionRetries(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"acceptance": false, "reflection": "result is empty, broaden the match"}`,
		`{"acceptance": true}`,
	}}
	r := runnerForTest(llm, 3)

	var reflections []string
	gen := func(ctx context.Context, req ToolRequest, reflection string) (GeneratedQuery, *StepError) {
		reflections = append(reflections, reflection)
		return GeneratedQuery{Query: "q"}, nil
	}
	exec := func(ctx context.Context, q GeneratedQuery) (Payload, *StepError) {
		return Payload{"rows": []string{}}, nil
	}

	resp, err := r.Run(context.Background(), ToolRequest{}, gen, exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", resp.Attempts)
	}
	if reflections[1] != "result is empty, broaden the match" {
		t.Fatalf("reflection did not feed the retry: %v", reflections)
	}
}

func TestRunCancelledContext(t *testing.T) {
	r := runnerForTest(acceptingLLM(), 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := func(ctx context.Context, req ToolRequest, reflection string) (GeneratedQuery, *StepError) {
		t.Fatal("generation should not run after cancellation")
		return GeneratedQuery{}, nil
	}
	exec := func(ctx context.Context, q GeneratedQuery) (Payload, *StepError) {
		return nil, nil
	}

	_, err := r.Run(ctx, ToolRequest{}, gen, exec)
	if err == nil || err.Kind != KindQueryTimeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
}
