package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var markdownFence = regexp.MustCompile("```[a-z0-9]*")

// CleanOracleResponse strips markdown code fences the oracle tends to wrap
// JSON in.
func CleanOracleResponse(text string) string {
	return strings.TrimSpace(markdownFence.ReplaceAllString(text, ""))
}

// ExtractJSONObject returns the first balanced top-level JSON object found in
// the response, or "" when none exists.
func ExtractJSONObject(response string) string {
	start := -1
	depth := 0
	for i, ch := range response {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return response[start : i+1]
			}
		}
	}
	return ""
}

// DecodeOracleJSON converts prose-that-looks-like-JSON into the typed value v,
// failing with an error on any deviation rather than passing raw text deeper
// into the pipeline.
func DecodeOracleJSON(response string, v interface{}) error {
	cleaned := CleanOracleResponse(response)
	jsonStr := ExtractJSONObject(cleaned)
	if jsonStr == "" {
		return fmt.Errorf("no JSON object found in oracle response")
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("failed to parse oracle JSON: %w", err)
	}
	return nil
}
