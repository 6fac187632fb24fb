// Package annotation answers filter-style sub-queries over a Gene Ontology
// annotation file loaded into an in-memory SQL table.
package annotation

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/biocortex/hypothesis/config"
	"github.com/biocortex/hypothesis/internal/agent/core"
)

// evidenceCodes legend, included in every generation prompt so the oracle can
// translate phrases like "experimentally verified" into code filters.
var evidenceCodes = map[string]string{
	"EXP": "Inferred from Experiment",
	"IDA": "Inferred from Direct Assay",
	"IPI": "Inferred from Physical Interaction",
	"IMP": "Inferred from Mutant Phenotype",
	"IGI": "Inferred from Genetic Interaction",
	"IEP": "Inferred from Expression Pattern",
	"HTP": "Inferred from High Throughput Experiment",
	"HDA": "Inferred from High Throughput Direct Assay",
	"HMP": "Inferred from High Throughput Mutant Phenotype",
	"HGI": "Inferred from High Throughput Genetic Interaction",
	"HEP": "Inferred from High Throughput Expression Pattern",
	"IBA": "Inferred from Biological aspect of Ancestor",
	"IBD": "Inferred from Biological aspect of Descendant",
	"IKR": "Inferred from Key Residues",
	"IRD": "Inferred from Rapid Divergence",
	"ISS": "Inferred from Sequence or structural Similarity",
	"ISO": "Inferred from Sequence Orthology",
	"ISA": "Inferred from Sequence Alignment",
	"ISM": "Inferred from Sequence Model",
	"IGC": "Inferred from Genomic Context",
	"RCA": "Inferred from Reviewed Computational Analysis",
	"TAS": "Traceable Author Statement",
	"NAS": "Non-traceable Author Statement",
	"IC":  "Inferred by Curator",
	"ND":  "No biological Data available",
	"IEA": "Inferred from Electronic Annotation",
}

const gafTips = `Tips for querying the gaf table:
- All columns are TEXT. aspect is one of P (biological process), F (molecular function), C (cellular component).
- Gene symbols live in db_object_symbol; match them case-insensitively with LOWER().
- qualifier may contain NOT; exclude those rows unless the task asks about negative annotations.
- db_object_synonym is pipe-separated; use LIKE '%|name|%' style matching when symbols miss.
- go_id holds GO term identifiers like GO:0006915.
- Answer counting questions with COUNT and GROUP BY instead of returning raw rows.`

const generateSQLPrompt = `You write SQLite SELECT statements over a single table named gaf holding Gene Ontology annotations in GAF format.

Columns (all TEXT), in order:
%s

Evidence code legend (column evidence_code):
%s

%s

Task:
%s

Expected result shape:
%s
%s
Write one SELECT statement for the task. Respond with a JSON object:
{"query": "the SQL", "explanation": "what it returns"}`

// Tool generates SQL filters with the oracle and runs them over the loaded
// annotation table.
type Tool struct {
	db      *sql.DB
	maxRows int
	runner  *core.ToolRunner
	logger  *log.Logger
}

// New loads the GAF file eagerly. A missing or unreadable file is a fatal
// dataset error surfaced at startup, not per query.
func New(ctx context.Context, cfg config.AnnotationConfig, llm core.LLMProvider, model string, attempts int, logger *log.Logger) (*Tool, error) {
	db, rows, err := loadGAF(ctx, cfg.GAFPath)
	if err != nil {
		return nil, fmt.Errorf("annotation dataset: %w", err)
	}
	logger.Printf("[annotation] loaded %d annotation rows from %s", rows, cfg.GAFPath)

	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 10
	}
	return &Tool{
		db:      db,
		maxRows: maxRows,
		runner: &core.ToolRunner{
			Name:     "annotation",
			LLM:      llm,
			Model:    model,
			Attempts: attempts,
			Logger:   logger,
		},
		logger: logger,
	}, nil
}

func (t *Tool) Close() error {
	return t.db.Close()
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
	prompt := fmt.Sprintf(generateSQLPrompt,
		strings.Join(gafColumns, ", "), renderEvidenceCodes(), gafTips,
		req.Instructions, req.GoalTemplate, feedback)

	resp, err := t.runner.LLM.Generate(ctx, prompt, t.runner.Model, map[string]interface{}{"json": true})
	if err != nil {
		return core.GeneratedQuery{}, core.NewStepError(core.KindConnection, "sql generation oracle failed: %v", err)
	}
	var q core.GeneratedQuery
	if derr := core.DecodeOracleJSON(resp, &q); derr != nil || strings.TrimSpace(q.Query) == "" {
		return core.GeneratedQuery{}, core.NewStepError(core.KindFilterSyntax, "oracle produced no usable SQL")
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(q.Query)), "SELECT") {
		return core.GeneratedQuery{}, core.NewStepError(core.KindFilterSyntax, "only SELECT statements are allowed")
	}
	return q, nil
}

func (t *Tool) execute(ctx context.Context, q core.GeneratedQuery) (core.Payload, *core.StepError) {
	rows, err := t.db.QueryContext(ctx, q.Query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.NewStepError(core.KindQueryTimeout, "annotation query timed out: %v", ctx.Err())
		}
		return nil, core.NewStepError(core.KindFilterSyntax, "sql rejected: %v", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, core.NewStepError(core.KindFilterSyntax, "columns: %v", err)
	}

	out := make([]map[string]interface{}, 0, t.maxRows)
	truncated := false
	for rows.Next() {
		if len(out) >= t.maxRows {
			truncated = true
			break
		}
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, core.NewStepError(core.KindFilterSyntax, "scan: %v", err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStepError(core.KindFilterSyntax, "rows: %v", err)
	}
	return core.Payload{"rows": out, "count": len(out), "truncated": truncated}, nil
}

func renderEvidenceCodes() string {
	var b strings.Builder
	for _, code := range []string{"EXP", "IDA", "IPI", "IMP", "IGI", "IEP", "HTP", "HDA", "HMP", "HGI", "HEP", "IBA", "IBD", "IKR", "IRD", "ISS", "ISO", "ISA", "ISM", "IGC", "RCA", "TAS", "NAS", "IC", "ND", "IEA"} {
		fmt.Fprintf(&b, "%s: %s\n", code, evidenceCodes[code])
	}
	return b.String()
}
