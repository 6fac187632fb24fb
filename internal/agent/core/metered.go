package core

import (
	"context"

	"github.com/biocortex/hypothesis/internal/agent/telemetry"
)

// MeteredProvider wraps an LLMProvider and records token usage and cost for
// every call.
type MeteredProvider struct {
	inner LLMProvider
	tel   *telemetry.Telemetry
}

func NewMeteredProvider(inner LLMProvider, tel *telemetry.Telemetry) *MeteredProvider {
	return &MeteredProvider{inner: inner, tel: tel}
}

func (m *MeteredProvider) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	resp, _, _, err := m.GenerateWithTokens(ctx, prompt, model, options)
	return resp, err
}

func (m *MeteredProvider) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	site, _ := options["site"].(string)
	if site == "" {
		site = "general"
	}
	resp, in, out, err := m.inner.GenerateWithTokens(ctx, prompt, model, options)
	cost := m.inner.CalculateCost(in, out, model)
	m.tel.RecordOracleCall(site, model, in, out, cost, err)
	return resp, in, out, err
}

func (m *MeteredProvider) GetAvailableModels() []string {
	return m.inner.GetAvailableModels()
}

func (m *MeteredProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	return m.inner.CalculateCost(inputTokens, outputTokens, model)
}
