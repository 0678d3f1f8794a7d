package tools

import (
	"encoding/json"

	"github.com/donhauser/atlas-agent/ui"
)

// Result is the outcome of one tool execution. Success is determined by
// whether Error is nil. UISuggestion, when present, is a rendering hint
// that still has to pass the protocol bridge before reaching a client.
type Result struct {
	Data         any         `json:"data,omitempty"`
	UISuggestion *ui.Spec    `json:"uiSuggestion,omitempty"`
	Error        *AgentError `json:"error,omitempty"`
}

// Success reports whether the execution succeeded.
func (r *Result) Success() bool { return r.Error == nil }

// String renders the result data as compact JSON for prompts and logs.
func (r *Result) String() string {
	if r.Error != nil {
		return r.Error.Error()
	}
	b, err := json.Marshal(r.Data)
	if err != nil {
		return "unserializable result"
	}
	return string(b)
}

// SuccessResult wraps data in a successful result.
func SuccessResult(data any) *Result {
	return &Result{Data: data}
}

// FailureResult wraps a classified error in a failed result.
func FailureResult(err *AgentError) *Result {
	return &Result{Error: err}
}
