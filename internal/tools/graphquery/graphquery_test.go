package graphquery

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/biocortex/hypothesis/config"
	"github.com/biocortex/hypothesis/internal/agent/core"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	return s.response, 0, 0, s.err
}

func (s *stubLLM) GetAvailableModels() []string                  { return nil }
func (s *stubLLM) CalculateCost(in, out int64, m string) float64 { return 0 }

func newOfflineTool(t *testing.T, llm core.LLMProvider) *Tool {
	t.Helper()
	cfg := config.GraphStoreConfig{URI: "bolt://localhost:7687", Username: "neo4j", Password: "x"}
	tool, err := New(cfg, llm, "test", 3, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new tool: %v", err)
	}
	t.Cleanup(func() { tool.Close(context.Background()) })
	return tool
}

func TestGenerateParsesOracleQuery(t *testing.T) {
	llm := &stubLLM{response: `{"query": "MATCH (p:Pathway) RETURN p.title LIMIT 5", "explanation": "pathway titles"}`}
	tool := newOfflineTool(t, llm)
	tool.schemaOnce.Do(func() {})
	tool.schema = "(test schema)"

	q, stepErr := tool.generate(context.Background(), core.ToolRequest{Instructions: "list pathways", GoalTemplate: "rows"}, "")
	if stepErr != nil {
		t.Fatalf("unexpected error: %v", stepErr)
	}
	if !strings.Contains(q.Query, "MATCH (p:Pathway)") {
		t.Fatalf("query lost: %q", q.Query)
	}
}

func TestGenerateRejectsEmptyQuery(t *testing.T) {
	llm := &stubLLM{response: `{"explanation": "forgot the query"}`}
	tool := newOfflineTool(t, llm)
	tool.schemaOnce.Do(func() {})

	_, stepErr := tool.generate(context.Background(), core.ToolRequest{}, "")
	if stepErr == nil || stepErr.Kind != core.KindQuerySyntax {
		t.Fatalf("expected query syntax error, got %v", stepErr)
	}
	if !stepErr.Retryable() {
		t.Fatal("empty generation should be retryable")
	}
}

func TestGenerateOracleFailureIsFatal(t *testing.T) {
	llm := &stubLLM{err: errors.New("oracle down")}
	tool := newOfflineTool(t, llm)
	tool.schemaOnce.Do(func() {})

	_, stepErr := tool.generate(context.Background(), core.ToolRequest{}, "")
	if stepErr == nil || stepErr.Kind != core.KindConnection {
		t.Fatalf("expected connection error, got %v", stepErr)
	}
	if stepErr.Retryable() {
		t.Fatal("oracle outage should not be retried")
	}
}

func TestGenerateFeedsReflectionIntoPrompt(t *testing.T) {
	var captured string
	llm := &promptCapturingLLM{response: `{"query": "MATCH (n) RETURN n", "explanation": "x"}`, captured: &captured}
	tool := newOfflineTool(t, llm)
	tool.schemaOnce.Do(func() {})

	if _, stepErr := tool.generate(context.Background(), core.ToolRequest{}, "label Gene does not exist"); stepErr != nil {
		t.Fatalf("unexpected error: %v", stepErr)
	}
	if !strings.Contains(captured, "label Gene does not exist") {
		t.Fatal("reflection not fed back into the generation prompt")
	}
}

type promptCapturingLLM struct {
	response string
	captured *string
}

func (p *promptCapturingLLM) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	*p.captured = prompt
	return p.response, nil
}

func (p *promptCapturingLLM) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	*p.captured = prompt
	return p.response, 0, 0, nil
}

func (p *promptCapturingLLM) GetAvailableModels() []string                  { return nil }
func (p *promptCapturingLLM) CalculateCost(in, out int64, m string) float64 { return 0 }

func TestClassifyNeo4jError(t *testing.T) {
	cases := []struct {
		err  error
		want core.ErrorKind
	}{
		{&neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "bad cypher"}, core.KindQuerySyntax},
		{context.DeadlineExceeded, core.KindQueryTimeout},
		{errors.New("connection refused"), core.KindConnection},
	}
	for _, c := range cases {
		got := classifyNeo4jError(c.err)
		if got.Kind != c.want {
			t.Errorf("classifyNeo4jError(%v) = %s, want %s", c.err, got.Kind, c.want)
		}
	}
}
