// Package tools assembles the backend tool adapters behind the closed
// capability dispatch surface the executor uses.
package tools

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/biocortex/hypothesis/config"
	"github.com/biocortex/hypothesis/internal/agent/core"
	"github.com/biocortex/hypothesis/internal/capability"
	"github.com/biocortex/hypothesis/internal/tools/annotation"
	"github.com/biocortex/hypothesis/internal/tools/graphanalysis"
	"github.com/biocortex/hypothesis/internal/tools/graphquery"
)

// Toolbox wires the three adapters into the capability dispatch interface.
// Each call gets a per-step timeout when one is configured.
type Toolbox struct {
	graph       *graphquery.Tool
	annotations *annotation.Tool
	analysis    *graphanalysis.Tool
	stepTimeout time.Duration
}

// NewToolbox builds every adapter from configuration. The annotation dataset
// loads eagerly, so a bad GAF path fails startup instead of the first turn.
func NewToolbox(ctx context.Context, cfg *config.Config, registry *capability.Registry, llm core.LLMProvider, logger *log.Logger) (*Toolbox, error) {
	attempts := cfg.Agents.MaxRetries

	graph, err := graphquery.New(cfg.GraphStore, llm, cfg.LLM.Routing.ModelFor("graph_query"), attempts, logger)
	if err != nil {
		return nil, fmt.Errorf("graph query tool: %w", err)
	}

	annotations, err := annotation.New(ctx, cfg.Annotation, llm, cfg.LLM.Routing.ModelFor("tabular_query"), attempts, logger)
	if err != nil {
		graph.Close(ctx)
		return nil, fmt.Errorf("annotation tool: %w", err)
	}

	analysis, err := graphanalysis.New(cfg.GraphStore, llm, cfg.LLM.Routing.ModelFor("graph_query"), attempts, logger)
	if err != nil {
		graph.Close(ctx)
		annotations.Close()
		return nil, fmt.Errorf("graph analysis tool: %w", err)
	}
	for _, desc := range registry.All() {
		if desc.Kind == capability.KindGraphQuery {
			analysis.GraphQueryTools[desc.Name] = true
		}
	}

	return &Toolbox{
		graph:       graph,
		annotations: annotations,
		analysis:    analysis,
		stepTimeout: cfg.Agents.StepTimeout,
	}, nil
}

func (t *Toolbox) Close(ctx context.Context) {
	t.graph.Close(ctx)
	t.annotations.Close()
	t.analysis.Close(ctx)
}

func (t *Toolbox) GraphQuery(ctx context.Context, req core.ToolRequest) (core.ToolResponse, *core.StepError) {
	ctx, cancel := t.stepContext(ctx)
	defer cancel()
	return t.graph.Answer(ctx, req)
}

func (t *Toolbox) TabularQuery(ctx context.Context, req core.ToolRequest) (core.ToolResponse, *core.StepError) {
	ctx, cancel := t.stepContext(ctx)
	defer cancel()
	return t.annotations.Answer(ctx, req)
}

func (t *Toolbox) GraphAnalysis(ctx context.Context, req core.ToolRequest) (core.ToolResponse, *core.StepError) {
	ctx, cancel := t.stepContext(ctx)
	defer cancel()
	return t.analysis.Answer(ctx, req)
}

func (t *Toolbox) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.stepTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.stepTimeout)
}
