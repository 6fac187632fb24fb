package core

import (
	"context"
	"testing"
	"time"
)

const briefResponse = `{"instructions": "expanded instructions", "goal_template": "rows of names"}`

func testPlan(steps ...PlanStep) Plan {
	return Plan{ID: "p1", Objective: "obj", Steps: steps, CreatedAt: time.Now()}
}

func TestExecuteDispatchesByKind(t *testing.T) {
	llm := &stubLLM{responses: []string{briefResponse}}
	tb := &stubToolbox{}
	e := NewExecutor(tb, testRegistry(), llm, "test", testTelemetry(), testLogger())

	plan := testPlan(
		PlanStep{Objective: "find pathways", Tool: "kegg_query"},
		PlanStep{Objective: "find annotations", Tool: "gaf_query"},
		PlanStep{Objective: "measure reach", Tool: "graph_analysis"},
	)
	results := e.Execute(context.Background(), plan)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.StepIndex != i {
			t.Fatalf("result %d misaligned: index %d", i, r.StepIndex)
		}
		if !r.Success {
			t.Fatalf("step %d failed: %v", i, r.Err)
		}
	}
	want := []string{"graph", "tabular", "analysis"}
	for i, call := range tb.calls {
		if call != want[i] {
			t.Fatalf("dispatch order %v, want %v", tb.calls, want)
		}
	}
}

func TestExecuteRejectsUnknownToolWithoutDispatch(t *testing.T) {
	llm := &stubLLM{responses: []string{briefResponse}}
	tb := &stubToolbox{}
	e := NewExecutor(tb, testRegistry(), llm, "test", testTelemetry(), testLogger())

	plan := testPlan(
		PlanStep{Objective: "bad step", Tool: "shell_exec"},
		PlanStep{Objective: "good step", Tool: "kegg_query"},
	)
	results := e.Execute(context.Background(), plan)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Success || results[0].Err == nil || results[0].Err.Kind != KindPlanGeneration {
		t.Fatalf("unknown tool not rejected: %+v", results[0])
	}
	if !results[1].Success {
		t.Fatalf("later step should still run: %+v", results[1])
	}
	// Only the known tool reached the toolbox.
	if len(tb.calls) != 1 || tb.calls[0] != "graph" {
		t.Fatalf("unexpected dispatches: %v", tb.calls)
	}
}

func TestExecuteContinuesPastFailedStep(t *testing.T) {
	llm := &stubLLM{responses: []string{briefResponse}}
	tb := &stubToolbox{graphErr: NewStepError(KindQuerySyntax, "bad cypher")}
	e := NewExecutor(tb, testRegistry(), llm, "test", testTelemetry(), testLogger())

	plan := testPlan(
		PlanStep{Objective: "graph step", Tool: "kegg_query"},
		PlanStep{Objective: "table step", Tool: "gaf_query"},
	)
	results := e.Execute(context.Background(), plan)

	if results[0].Success {
		t.Fatal("expected first step to fail")
	}
	if results[0].Err.Kind != KindQuerySyntax {
		t.Fatalf("error kind lost: %v", results[0].Err)
	}
	if !results[1].Success {
		t.Fatalf("second step should succeed: %+v", results[1])
	}
}

func TestExecutePassesPriorResults(t *testing.T) {
	llm := &stubLLM{responses: []string{briefResponse}}
	var seenPrior int
	tb := &priorCapturingToolbox{onAnalysis: func(req ToolRequest) { seenPrior = len(req.Prior) }}
	e := NewExecutor(tb, testRegistry(), llm, "test", testTelemetry(), testLogger())

	plan := testPlan(
		PlanStep{Objective: "graph step", Tool: "kegg_query"},
		PlanStep{Objective: "analysis step", Tool: "graph_analysis"},
	)
	e.Execute(context.Background(), plan)

	if seenPrior != 1 {
		t.Fatalf("analysis step saw %d prior results, want 1", seenPrior)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	llm := &stubLLM{responses: []string{briefResponse}}
	tb := &stubToolbox{}
	e := NewExecutor(tb, testRegistry(), llm, "test", testTelemetry(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plan := testPlan(
		PlanStep{Objective: "a", Tool: "kegg_query"},
		PlanStep{Objective: "b", Tool: "gaf_query"},
	)
	results := e.Execute(ctx, plan)

	if len(results) != 1 {
		t.Fatalf("expected walk to stop after cancellation, got %d results", len(results))
	}
	if results[0].Success || results[0].Err.Kind != KindQueryTimeout {
		t.Fatalf("unexpected cancellation result: %+v", results[0])
	}
	if len(tb.calls) != 0 {
		t.Fatalf("no tool should run after cancellation: %v", tb.calls)
	}
}

type priorCapturingToolbox struct {
	stubToolbox
	onAnalysis func(req ToolRequest)
}

func (p *priorCapturingToolbox) GraphAnalysis(ctx context.Context, req ToolRequest) (ToolResponse, *StepError) {
	if p.onAnalysis != nil {
		p.onAnalysis(req)
	}
	return p.stubToolbox.GraphAnalysis(ctx, req)
}
