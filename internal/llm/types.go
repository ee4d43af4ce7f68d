package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"toolforge/internal/tool"
)

// Classifier buckets a tool-execution failure.
type Classifier string

const (
	ClassifierAuthentication Classifier = "authentication"
	ClassifierSyntax         Classifier = "syntax"
	ClassifierParameter      Classifier = "parameter"
	ClassifierParsing        Classifier = "parsing"
)

// PlanResponse is the planner's structured output.
type PlanResponse struct {
	Steps       []string           `json:"steps"`
	NeededTools []tool.Description `json:"needed_tools"`
	Explanation string             `json:"explanation"`
}

// CodeResponse is the tool generator's structured output.
type CodeResponse struct {
	Code         string   `json:"code"`
	Dependencies []string `json:"dependencies"`
}

// ReviewResponse is the code reviewer's structured output.
type ReviewResponse struct {
	Valid       bool   `json:"tool_valid"`
	Updated     bool   `json:"tool_updated"`
	Issues      string `json:"tool_issues"`
	UpdatedCode string `json:"updated_tool_code"`
}

// ResultError attributes an execution failure to one tool.
type ResultError struct {
	ToolName    string     `json:"tool_name"`
	Message     string     `json:"error_message"`
	NeedsReview bool       `json:"needs_review"`
	Classifier  Classifier `json:"classifier"`
}

// ResultEnvelope is the outcome of one execution attempt. Once classified
// and persisted it is never mutated; a retry produces a fresh envelope.
type ResultEnvelope struct {
	FinalResult string       `json:"final_result"`
	Error       *ResultError `json:"error,omitempty"`
}

// ParseEnvelope attempts the strict structured parse of raw executor output.
func ParseEnvelope(raw string) (*ResultEnvelope, error) {
	trimmed := strings.TrimSpace(raw)
	// Models occasionally fence their JSON despite instructions.
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var env ResultEnvelope
	dec := json.NewDecoder(strings.NewReader(trimmed))
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode result envelope: %w", err)
	}
	if env.FinalResult == "" && env.Error == nil {
		return nil, fmt.Errorf("result envelope is empty")
	}
	if env.Error != nil && env.Error.Message == "" {
		env.Error = nil
	}
	return &env, nil
}
