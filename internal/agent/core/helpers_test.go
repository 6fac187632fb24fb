package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/biocortex/hypothesis/config"
	"github.com/biocortex/hypothesis/internal/agent/telemetry"
	"github.com/biocortex/hypothesis/internal/capability"
)

// stubLLM replays queued responses in order. Once the queue drains the last
// response repeats, so callers can script exact call sequences or a single
// catch-all reply.
type stubLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (s *stubLLM) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "{}", nil
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func (s *stubLLM) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	resp, err := s.Generate(ctx, prompt, model, options)
	return resp, 10, 5, err
}

func (s *stubLLM) GetAvailableModels() []string { return []string{"test"} }

func (s *stubLLM) CalculateCost(in, out int64, model string) float64 { return 0 }

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// stubToolbox records dispatches and returns canned outcomes per capability.
type stubToolbox struct {
	mu       sync.Mutex
	calls    []string
	graphErr *StepError
	tableErr *StepError
	analyErr *StepError
}

func (s *stubToolbox) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
}

func (s *stubToolbox) GraphQuery(ctx context.Context, req ToolRequest) (ToolResponse, *StepError) {
	s.record("graph")
	if s.graphErr != nil {
		return ToolResponse{Attempts: 3}, s.graphErr
	}
	return ToolResponse{Payload: Payload{"rows": []string{"TP53"}}, Attempts: 1}, nil
}

func (s *stubToolbox) TabularQuery(ctx context.Context, req ToolRequest) (ToolResponse, *StepError) {
	s.record("tabular")
	if s.tableErr != nil {
		return ToolResponse{Attempts: 3}, s.tableErr
	}
	return ToolResponse{Payload: Payload{"rows": []string{"GO:0006915"}}, Attempts: 1}, nil
}

func (s *stubToolbox) GraphAnalysis(ctx context.Context, req ToolRequest) (ToolResponse, *StepError) {
	s.record("analysis")
	if s.analyErr != nil {
		return ToolResponse{Attempts: 1}, s.analyErr
	}
	return ToolResponse{Payload: Payload{"ratio": 0.4}, Attempts: 1}, nil
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func testTelemetry() *telemetry.Telemetry {
	return telemetry.NewTelemetry(config.TelemetryConfig{Enabled: true, CostTracking: true})
}

func testRegistry() *capability.Registry {
	reg, err := capability.NewRegistry(capability.DefaultDescriptors(), []capability.Kind{
		capability.KindGraphQuery,
		capability.KindTabularQuery,
		capability.KindGraphAnalysis,
	})
	if err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
	return reg
}
