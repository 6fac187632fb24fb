// Package graphanalysis runs a fixed catalogue of structural measurements on
// the KEGG pathway graph: subtree coverage, depth ranges, and direct
// neighborhood of a node inside a chosen pathway hierarchy.
package graphanalysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/biocortex/hypothesis/config"
	"github.com/biocortex/hypothesis/internal/agent/core"
)

// analyses run per invocation, keyed by the payload field each fills. Every
// query takes $node and $pathway parameters and returns a single record.
var analyses = []struct {
	name  string
	query string
}{
	{
		name: "subtree_pathway_ratio",
		query: `MATCH (root:Pathway) WHERE toLower(root.title) = toLower($pathway)
MATCH (root)-[:CHILD*0..]->(p:Pathway)
WITH collect(DISTINCT p) AS subtree
WITH subtree, size(subtree) AS total
UNWIND subtree AS p
OPTIONAL MATCH (p)-[:CONTAINS]->(n) WHERE toLower(n.name) CONTAINS toLower($node)
WITH total, count(DISTINCT CASE WHEN n IS NULL THEN NULL ELSE p END) AS containing
RETURN containing, total,
       CASE WHEN total = 0 THEN 0.0 ELSE toFloat(containing)/total END AS ratio`,
	},
	{
		name: "root_to_node_depth",
		query: `MATCH (root:Pathway) WHERE toLower(root.title) = toLower($pathway)
MATCH path = (root)-[:CHILD*0..]->(p:Pathway)-[:CONTAINS]->(n)
WHERE toLower(n.name) CONTAINS toLower($node)
RETURN min(length(path)) AS min_depth, max(length(path)) AS max_depth`,
	},
	{
		name: "node_to_leaf_depth",
		query: `MATCH (root:Pathway) WHERE toLower(root.title) = toLower($pathway)
MATCH (root)-[:CHILD*0..]->(p:Pathway)-[:CONTAINS]->(n)
WHERE toLower(n.name) CONTAINS toLower($node)
MATCH path = (p)-[:CHILD*0..]->(leaf:Pathway)
WHERE NOT (leaf)-[:CHILD]->(:Pathway)
RETURN min(length(path)) AS min_depth, max(length(path)) AS max_depth`,
	},
	{
		name: "root_to_leaf_depth",
		query: `MATCH (root:Pathway) WHERE toLower(root.title) = toLower($pathway)
MATCH path = (root)-[:CHILD*0..]->(leaf:Pathway)
WHERE NOT (leaf)-[:CHILD]->(:Pathway)
RETURN min(length(path)) AS min_depth, max(length(path)) AS max_depth`,
	},
	{
		name: "directly_impacted_nodes",
		query: `MATCH (root:Pathway) WHERE toLower(root.title) = toLower($pathway)
MATCH (root)-[:CHILD*0..]->(:Pathway)-[:CONTAINS]->(n)
WHERE toLower(n.name) CONTAINS toLower($node)
MATCH (n)--(m) WHERE NOT m:Pathway
RETURN collect(DISTINCT m.name)[0..25] AS neighbors, count(DISTINCT m) AS neighbor_count`,
	},
}

const paramPrompt = `You are choosing parameters for structural analysis of a KEGG pathway graph.

Task:
%s

Data gathered by earlier steps:
%s

Known pathway hierarchy titles:
%s

The analysis measures, for one node inside one pathway hierarchy: what fraction of the hierarchy's pathways contain the node, how deep the node sits between root and leaves, and which entities it directly connects to.

Pick the node name and the pathway title the task refers to. The node name must come from the earlier step data, not be invented. The pathway title must be one of the known titles.
%s
Respond with a JSON object:
{"node_name": "...", "pathway_title": "...", "explanation": "why these"}`

type analysisParams struct {
	NodeName     string `json:"node_name"`
	PathwayTitle string `json:"pathway_title"`
	Explanation  string `json:"explanation"`
}

// Tool selects analysis parameters with the oracle and runs the catalogue.
type Tool struct {
	driver   neo4j.DriverWithContext
	database string
	llm      core.LLMProvider
	model    string
	attempts int
	logger   *log.Logger

	// GraphQueryTools names the registered tools whose successful results
	// satisfy the prior-data requirement.
	GraphQueryTools map[string]bool

	pathwaysOnce sync.Once
	pathways     string
}

func New(cfg config.GraphStoreConfig, llm core.LLMProvider, model string, attempts int, logger *log.Logger) (*Tool, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &Tool{
		driver:          driver,
		database:        cfg.Database,
		llm:             llm,
		model:           model,
		attempts:        attempts,
		logger:          logger,
		GraphQueryTools: map[string]bool{},
	}, nil
}

func (t *Tool) Close(ctx context.Context) error {
	return t.driver.Close(ctx)
}

// Answer runs the analysis catalogue. It refuses to run without a successful
// earlier graph query: parameters must be grounded in real node names, and
// without prior data the oracle can only invent them.
func (t *Tool) Answer(ctx context.Context, req core.ToolRequest) (core.ToolResponse, *core.StepError) {
	if !t.hasGraphData(req.Prior) {
		return core.ToolResponse{}, core.NewStepError(core.KindAnalysisParameter,
			"graph analysis needs a successful graph query earlier in the plan to ground its node and pathway parameters")
	}

	var (
		logRecords []core.AttemptRecord
		feedback   string
	)
	for attempt := 1; attempt <= t.attempts; attempt++ {
		params, perr := t.chooseParams(ctx, req, feedback)
		if perr != nil {
			logRecords = append(logRecords, core.AttemptRecord{Attempt: attempt, Outcome: perr.Error()})
			feedback = perr.Message
			continue
		}
		t.logger.Printf("[graphanalysis] attempt %d node=%q pathway=%q", attempt, params.NodeName, params.PathwayTitle)

		payload, runErr := t.run(ctx, params)
		if runErr != nil {
			logRecords = append(logRecords, core.AttemptRecord{
				Attempt: attempt,
				Query:   fmt.Sprintf("node=%q pathway=%q", params.NodeName, params.PathwayTitle),
				Outcome: runErr.Error(),
			})
			if !runErr.Retryable() {
				return core.ToolResponse{Attempts: attempt, Log: logRecords}, runErr
			}
			feedback = runErr.Message
			continue
		}

		logRecords = append(logRecords, core.AttemptRecord{
			Attempt:  attempt,
			Query:    fmt.Sprintf("node=%q pathway=%q", params.NodeName, params.PathwayTitle),
			Outcome:  "executed",
			Accepted: true,
		})
		return core.ToolResponse{Payload: payload, Attempts: attempt, Log: logRecords}, nil
	}
	return core.ToolResponse{Attempts: t.attempts, Log: logRecords},
		core.NewStepError(core.KindAnalysisParameter, "no usable analysis parameters after %d attempts: %s", t.attempts, feedback)
}

func (t *Tool) hasGraphData(prior []core.StepResult) bool {
	for _, r := range prior {
		if r.Success && t.GraphQueryTools[r.Tool] {
			return true
		}
	}
	return false
}

func (t *Tool) chooseParams(ctx context.Context, req core.ToolRequest, feedback string) (analysisParams, *core.StepError) {
	var feedbackBlock string
	if feedback != "" {
		feedbackBlock = fmt.Sprintf("\nYour previous choice was not usable: %s\n", feedback)
	}
	prompt := fmt.Sprintf(paramPrompt, req.Instructions, renderPrior(req.Prior), t.pathwayTitles(ctx), feedbackBlock)

	resp, err := t.llm.Generate(ctx, prompt, t.model, map[string]interface{}{"json": true})
	if err != nil {
		return analysisParams{}, core.NewStepError(core.KindAnalysisParameter, "parameter oracle failed: %v", err)
	}
	var params analysisParams
	if derr := core.DecodeOracleJSON(resp, &params); derr != nil {
		return analysisParams{}, core.NewStepError(core.KindAnalysisParameter, "unreadable parameters: %v", derr)
	}
	if strings.TrimSpace(params.NodeName) == "" || strings.TrimSpace(params.PathwayTitle) == "" {
		return analysisParams{}, core.NewStepError(core.KindAnalysisParameter, "node_name and pathway_title are both required")
	}
	return params, nil
}

func (t *Tool) run(ctx context.Context, params analysisParams) (core.Payload, *core.StepError) {
	args := map[string]interface{}{"node": params.NodeName, "pathway": params.PathwayTitle}
	payload := core.Payload{
		"node_name":     params.NodeName,
		"pathway_title": params.PathwayTitle,
	}
	for _, a := range analyses {
		result, err := neo4j.ExecuteQuery(ctx, t.driver, a.query, args,
			neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(t.database))
		if err != nil {
			return nil, classifyNeo4jError(err)
		}
		if len(result.Records) == 0 {
			payload[a.name] = nil
			continue
		}
		payload[a.name] = result.Records[0].AsMap()
	}

	// A ratio of zero with no depth hits means the node never appears under
	// the chosen hierarchy, so the parameters were wrong.
	if m, ok := payload["root_to_node_depth"].(map[string]interface{}); ok {
		if m["min_depth"] == nil {
			return nil, core.NewStepError(core.KindAnalysisParameter,
				"node %q does not occur under pathway %q", params.NodeName, params.PathwayTitle)
		}
	}
	return payload, nil
}

// pathwayTitles fetches the hierarchy root titles once for prompt grounding.
func (t *Tool) pathwayTitles(ctx context.Context) string {
	t.pathwaysOnce.Do(func() {
		result, err := neo4j.ExecuteQuery(ctx, t.driver,
			"MATCH (p:Pathway) WHERE NOT (:Pathway)-[:CHILD]->(p) RETURN p.title AS title ORDER BY title",
			nil, neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(t.database))
		if err != nil {
			t.logger.Printf("[graphanalysis] pathway titles unavailable: %v", err)
			t.pathways = "(unavailable)"
			return
		}
		var titles []string
		for _, record := range result.Records {
			if title, ok := record.AsMap()["title"].(string); ok {
				titles = append(titles, title)
			}
		}
		t.pathways = strings.Join(titles, "\n")
	})
	return t.pathways
}

func renderPrior(prior []core.StepResult) string {
	if len(prior) == 0 {
		return "(none)"
	}
	const limit = 2000
	var b strings.Builder
	for _, r := range prior {
		if !r.Success {
			continue
		}
		preview := fmt.Sprintf("%v", r.Payload)
		if len(preview) > limit {
			preview = preview[:limit] + "..."
		}
		fmt.Fprintf(&b, "step %d (%s): %s\n", r.StepIndex+1, r.Tool, preview)
	}
	if b.Len() == 0 {
		return "(no successful steps)"
	}
	return b.String()
}

func classifyNeo4jError(err error) *core.StepError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return core.NewStepError(core.KindQueryTimeout, "analysis query timed out: %v", err)
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		if strings.Contains(neoErr.Code, "SyntaxError") || strings.Contains(neoErr.Code, "Statement") {
			return core.NewStepError(core.KindQuerySyntax, "cypher rejected: %s", neoErr.Msg)
		}
	}
	return core.NewStepError(core.KindConnection, "graph store unreachable: %v", err)
}
