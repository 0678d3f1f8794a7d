package agent

import (
	"github.com/donhauser/atlas-agent/model"
	"github.com/donhauser/atlas-agent/tools"
	"github.com/donhauser/atlas-agent/ui"
)

// ChatRequest is one user turn sent to the agent.
type ChatRequest struct {
	Message   string            `json:"message"`
	Context   model.TurnContext `json:"context"`
	SessionID string            `json:"sessionId,omitempty"`
}

// ChatResponse is the agent's answer to one turn.
type ChatResponse struct {
	Content          string                   `json:"content"`
	SessionID        string                   `json:"sessionId"`
	PendingToolCalls []*model.PendingToolCall `json:"pendingToolCalls,omitempty"`
	PredictedActions []model.PredictedAction  `json:"predictedActions,omitempty"`
	UISpec           *ui.Spec                 `json:"uiSpec,omitempty"`
	ToolResults      []ToolCallResult         `json:"toolResults,omitempty"`
	FormUpdates      []model.FormUpdate       `json:"formUpdates,omitempty"`
	Error            *WireError               `json:"error,omitempty"`
}

// WireError is the machine-readable failure surfaced at the turn
// boundary. The session itself stays alive.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToolResult is the wire shape of a single tool execution.
type ToolResult struct {
	Success      bool       `json:"success"`
	Data         any        `json:"data,omitempty"`
	Artifacts    []any      `json:"artifacts,omitempty"`
	NextHints    []string   `json:"nextHints,omitempty"`
	UISuggestion *ui.Spec   `json:"uiSuggestion,omitempty"`
	Error        *WireError `json:"error,omitempty"`
}

// ToolCallResult pairs a tool id with its wire result.
type ToolCallResult struct {
	ToolID string     `json:"toolId"`
	Result ToolResult `json:"result"`
}

// wireResult converts an executor result into the wire shape.
func wireResult(r *tools.Result) ToolResult {
	out := ToolResult{Success: r.Success()}
	if r.Success() {
		out.Data = r.Data
		out.UISuggestion = r.UISuggestion
	} else {
		out.Error = &WireError{Code: string(r.Error.Code), Message: r.Error.Message}
	}
	return out
}
