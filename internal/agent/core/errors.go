package core

import "fmt"

// ErrorKind names one failure class from the taxonomy. Kinds determine
// whether the executor's bounded retry loop may regenerate the query.
type ErrorKind string

const (
	KindClassificationAmbiguous ErrorKind = "classification_ambiguous"
	KindPlanGeneration          ErrorKind = "plan_generation"
	KindQuerySyntax             ErrorKind = "query_syntax"
	KindFilterSyntax            ErrorKind = "filter_syntax"
	KindQueryTimeout            ErrorKind = "query_timeout"
	KindConnection              ErrorKind = "connection"
	KindDatasetUnavailable      ErrorKind = "dataset_unavailable"
	KindAnalysisParameter       ErrorKind = "analysis_parameter"
)

// StepError is a failure record attached to a StepResult.
type StepError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether the bounded retry loop may regenerate the query
// after this failure. Connection and dataset failures are fatal per adapter;
// they surface as failed results without further attempts.
func (e *StepError) Retryable() bool {
	switch e.Kind {
	case KindQuerySyntax, KindFilterSyntax, KindQueryTimeout:
		return true
	}
	return false
}

// NewStepError builds a StepError with a formatted message.
func NewStepError(kind ErrorKind, format string, args ...interface{}) *StepError {
	return &StepError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// PlanGenerationError indicates the planner could not produce a well-formed,
// executable plan. The orchestrator degrades to a conversational reply.
type PlanGenerationError struct {
	Reason string
}

func (e *PlanGenerationError) Error() string {
	return "plan generation failed: " + e.Reason
}
