// Package graphquery answers free-text sub-queries by generating and running
// Cypher against the KEGG pathway graph.
package graphquery

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

const cypherTips = `Tips for writing Cypher against this graph:
- Node and relationship names come from KEGG. Pathway maps are nodes; genes, compounds and other entries hang off them.
- Match names case-insensitively: WHERE toLower(n.name) CONTAINS toLower("..."). Users rarely type exact identifiers.
- Prefer returning node properties (name, title, id) over whole nodes.
- Always LIMIT exploratory queries, 25 is plenty.
- The graph is a forest of pathway hierarchies. Parent-child edges point from the broader pathway to the more specific one.
- Do not use APOC procedures in queries; they are only available for schema inspection.`

const generatePrompt = `You write Cypher for a Neo4j database holding KEGG pathway data.

Graph schema:
%s

%s

Task:
%s

Expected result shape:
%s
%s
Write one read-only Cypher query for the task. Respond with a JSON object:
{"query": "the Cypher query", "explanation": "what it returns"}`

// Tool generates Cypher with the oracle and executes it on Neo4j.
type Tool struct {
	driver   neo4j.DriverWithContext
	database string
	runner   *core.ToolRunner
	logger   *log.Logger

	schemaOnce sync.Once
	schema     string
}

func New(cfg config.GraphStoreConfig, llm core.LLMProvider, model string, attempts int, logger *log.Logger) (*Tool, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	return &Tool{
		driver:   driver,
		database: cfg.Database,
		runner: &core.ToolRunner{
			Name:     "graphquery",
			LLM:      llm,
			Model:    model,
			Attempts: attempts,
			Logger:   logger,
		},
		logger: logger,
	}, nil
}

func (t *Tool) Close(ctx context.Context) error {
	return t.driver.Close(ctx)
}

// Answer runs the generate/execute/reflect loop for one sub-query.
func (t *Tool) Answer(ctx context.Context, req core.ToolRequest) (core.ToolResponse, *core.StepError) {
	return t.runner.Run(ctx, req, t.generate, t.execute)
}

func (t *Tool) generate(ctx context.Context, req core.ToolRequest, reflection string) (core.GeneratedQuery, *core.StepError) {
	var feedback string
	if reflection != "" {
		feedback = fmt.Sprintf("\nYour previous query was not acceptable: %s\n", reflection)
	}
	prompt := fmt.Sprintf(generatePrompt, t.graphSchema(ctx), cypherTips, req.Instructions, req.GoalTemplate, feedback)

	resp, err := t.runner.LLM.Generate(ctx, prompt, t.runner.Model, map[string]interface{}{"json": true})
	if err != nil {
		return core.GeneratedQuery{}, core.NewStepError(core.KindConnection, "cypher generation oracle failed: %v", err)
	}
	var q core.GeneratedQuery
	if derr := core.DecodeOracleJSON(resp, &q); derr != nil || strings.TrimSpace(q.Query) == "" {
		return core.GeneratedQuery{}, core.NewStepError(core.KindQuerySyntax, "oracle produced no usable Cypher")
	}
	return q, nil
}

func (t *Tool) execute(ctx context.Context, q core.GeneratedQuery) (core.Payload, *core.StepError) {
	result, err := neo4j.ExecuteQuery(ctx, t.driver, q.Query, nil,
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(t.database))
	if err != nil {
		return nil, classifyNeo4jError(err)
	}

	rows := make([]map[string]interface{}, 0, len(result.Records))
	for _, record := range result.Records {
		rows = append(rows, record.AsMap())
	}
	return core.Payload{"rows": rows, "count": len(rows)}, nil
}

// graphSchema fetches the live schema once. apoc.meta.schema gives property
// detail; when APOC is absent the built-in visualization still names labels
// and relationship types.
func (t *Tool) graphSchema(ctx context.Context) string {
	t.schemaOnce.Do(func() {
		for _, query := range []string{
			"CALL apoc.meta.schema() YIELD value RETURN value",
			"CALL db.schema.visualization()",
		} {
			result, err := neo4j.ExecuteQuery(ctx, t.driver, query, nil,
				neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(t.database))
			if err != nil {
				t.logger.Printf("[graphquery] schema via %q failed: %v", query, err)
				continue
			}
			var b strings.Builder
			for _, record := range result.Records {
				fmt.Fprintf(&b, "%v\n", record.AsMap())
			}
			t.schema = b.String()
			return
		}
		t.schema = "(schema unavailable)"
	})
	return t.schema
}

// classifyNeo4jError maps driver errors onto step error kinds so the retry
// loop only re-generates queries for faults a new query could fix.
func classifyNeo4jError(err error) *core.StepError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return core.NewStepError(core.KindQueryTimeout, "graph query timed out: %v", err)
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		if strings.Contains(neoErr.Code, "SyntaxError") || strings.Contains(neoErr.Code, "Statement") {
			return core.NewStepError(core.KindQuerySyntax, "cypher rejected: %s", neoErr.Msg)
		}
	}
	return core.NewStepError(core.KindConnection, "graph store unreachable: %v", err)
}
