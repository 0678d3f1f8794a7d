// Package model provides domain types shared across packages.
package model

// TurnContext carries the page context the client sends with every chat
// message. Module scopes which maps are eligible for matching.
type TurnContext struct {
	Module   string `json:"module"`
	PageType string `json:"pageType,omitempty"`
	Pathname string `json:"pathname,omitempty"`
}

// ToolCallRequest identifies one tool invocation the client asks the server
// to run, typically after the user approved a confirmation gate.
type ToolCallRequest struct {
	ToolID    string         `json:"toolId"`
	Params    map[string]any `json:"params"`
	RequestID string         `json:"requestId"`
}

// PendingToolCall is a fully resolved tool call awaiting user confirmation.
// It exists only between the orchestrator proposing a state-changing call
// and the user approving or rejecting it.
type PendingToolCall struct {
	ToolID    string         `json:"toolId"`
	Params    map[string]any `json:"params"`
	RequestID string         `json:"requestId"`
	Reason    string         `json:"reason,omitempty"`
}

// AsRequest converts a pending call into the request shape the confirmation
// endpoint expects back.
func (p PendingToolCall) AsRequest() ToolCallRequest {
	return ToolCallRequest{ToolID: p.ToolID, Params: p.Params, RequestID: p.RequestID}
}

// PredictedActionKind classifies what a predicted action would do if run.
type PredictedActionKind string

const (
	// ActionExecute runs a tool. Always confirmation-gated.
	ActionExecute PredictedActionKind = "execute"
	// ActionNavigate suggests the client navigate to a page.
	ActionNavigate PredictedActionKind = "navigate"
	// ActionSuggest is a plain follow-up suggestion with no side effect.
	ActionSuggest PredictedActionKind = "suggest"
)

// PredictedAction is a next step the server proposes to the client. Any
// action of kind execute MUST carry RequiresConfirmation = true; the client
// controller refuses to auto-run it otherwise.
type PredictedAction struct {
	Kind                 PredictedActionKind `json:"kind"`
	Label                string              `json:"label"`
	ToolID               string              `json:"toolId,omitempty"`
	Params               map[string]any      `json:"params,omitempty"`
	RequestID            string              `json:"requestId,omitempty"`
	Target               string              `json:"target,omitempty"`
	RequiresConfirmation bool                `json:"requiresConfirmation"`
}

// FormUpdate asks the client to patch a field on a currently projected form.
type FormUpdate struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}
