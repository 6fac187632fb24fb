package core

import "testing"

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{`leading prose {"a": {"b": 2}} trailing prose`, `{"a": {"b": 2}}`},
		{`no json here`, ``},
		{`broken { never closes`, ``},
		{`}{"a": 1}`, `{"a": 1}`},
	}
	for _, c := range cases {
		if got := ExtractJSONObject(c.in); got != c.want {
			t.Errorf("ExtractJSONObject(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDecodeOracleJSONFencedResponse(t *testing.T) {
	var out struct {
		Mode string `json:"mode"`
	}
	resp := "```json\n{\"mode\": \"research\"}\n```"
	if err := DecodeOracleJSON(resp, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Mode != "research" {
		t.Fatalf("got %q", out.Mode)
	}
}

func TestDecodeOracleJSONRejectsProse(t *testing.T) {
	var out map[string]interface{}
	if err := DecodeOracleJSON("I think the answer is research.", &out); err == nil {
		t.Fatal("expected error for prose response")
	}
}

func TestStepErrorRetryable(t *testing.T) {
	retryable := []ErrorKind{KindQuerySyntax, KindFilterSyntax, KindQueryTimeout}
	fatal := []ErrorKind{KindConnection, KindDatasetUnavailable, KindAnalysisParameter, KindPlanGeneration}

	for _, k := range retryable {
		if !NewStepError(k, "x").Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	for _, k := range fatal {
		if NewStepError(k, "x").Retryable() {
			t.Errorf("%s should be fatal", k)
		}
	}
}
