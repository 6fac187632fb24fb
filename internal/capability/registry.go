package capability

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is one of the closed set of backend capabilities.
type Kind string

const (
	KindGraphQuery    Kind = "graph-query"
	KindTabularQuery  Kind = "tabular-query"
	KindGraphAnalysis Kind = "graph-analysis"
)

// QueryShape describes the sub-query payload a tool accepts.
type QueryShape string

const (
	ShapeFreeText   QueryShape = "free-text"
	ShapeFilter     QueryShape = "structured-filter"
	ShapeParameters QueryShape = "parameters"
)

// Descriptor describes one registered tool: its name, what it answers, the
// sub-query shape it accepts, and a specificity rank used to break routing
// ties (higher wins — specific tools return smaller, more directly usable
// payloads).
type Descriptor struct {
	Name        string     `json:"name"`
	Kind        Kind       `json:"kind"`
	Description string     `json:"description"`
	QueryShape  QueryShape `json:"query_shape"`
	Specificity int        `json:"specificity"`
}

// DefaultDescriptors returns the built-in tool set.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name: "kegg_query",
			Kind: KindGraphQuery,
			Description: "KEGG is a database of disease pathways stored in a graph store. " +
				"The tool retrieves information about the signaling chains between genes in a disease pathway. " +
				"Use to find relationships between genes, pathways and diseases.",
			QueryShape:  ShapeFreeText,
			Specificity: 2,
		},
		{
			Name: "gaf_query",
			Kind: KindTabularQuery,
			Description: "The GAF dataset contains GO terms and annotations for human genes, " +
				"including gene symbol, GO term identifier, evidence code and aspect columns. " +
				"The tool answers filter and aggregate questions over the annotation table.",
			QueryShape:  ShapeFilter,
			Specificity: 1,
		},
		{
			Name: "graph_analysis",
			Kind: KindGraphAnalysis,
			Description: "Graph Analysis runs a fixed network analysis for a gene symbol (node_name) " +
				"in the context of a disease pathway (pathway_title): pathway impact ratio, " +
				"root/leaf distances and directly impacted genes. " +
				"PREREQUISITES: node_name is a gene symbol (e.g. INSR); pathway_title must match " +
				"a pathway name as stored in KEGG, so query for it in an earlier step.",
			QueryShape:  ShapeParameters,
			Specificity: 3,
		},
	}
}

// ErrKindMissing indicates a required capability kind has no registered tool.
var ErrKindMissing = fmt.Errorf("required capability missing")

// Registry holds validated descriptors keyed by tool name. Read-only after
// initialization; safe for unsynchronized concurrent reads.
type Registry struct {
	byName map[string]Descriptor
}

// NewRegistry validates descriptors and ensures every required kind is
// covered. A nil required list defaults to the full capability set.
func NewRegistry(descriptors []Descriptor, required []Kind) (*Registry, error) {
	reg := &Registry{byName: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("descriptor with empty name")
		}
		switch d.Kind {
		case KindGraphQuery, KindTabularQuery, KindGraphAnalysis:
		default:
			return nil, fmt.Errorf("descriptor %s has unknown kind %q", d.Name, d.Kind)
		}
		if _, dup := reg.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate descriptor name %q", d.Name)
		}
		reg.byName[d.Name] = d
	}
	if required == nil {
		required = []Kind{KindGraphQuery, KindTabularQuery, KindGraphAnalysis}
	}
	for _, k := range required {
		found := false
		for _, d := range reg.byName {
			if d.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrKindMissing, k)
		}
	}
	return reg, nil
}

// Resolve returns the descriptor for a tool name.
func (r *Registry) Resolve(name string) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	d, ok := r.byName[name]
	return d, ok
}

// All returns every descriptor ordered by specificity (most specific first),
// then by name.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Specificity != out[j].Specificity {
			return out[i].Specificity > out[j].Specificity
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// PromptBlock renders the tool list for planning prompts, most specific
// first so the tie-break preference is visible to the oracle.
func (r *Registry) PromptBlock() string {
	var b strings.Builder
	for _, d := range r.All() {
		fmt.Fprintf(&b, "- %s (%s, accepts %s): %s\n", d.Name, d.Kind, d.QueryShape, d.Description)
	}
	return b.String()
}
