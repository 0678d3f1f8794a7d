// Package client is the client-resident session controller: it owns
// the conversation history, the last response's pending confirmations
// and predicted actions, the rendered canvas state, and the sessionId
// threaded through every request.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/donhauser/atlas-agent/agent"
	"github.com/donhauser/atlas-agent/llm"
	"github.com/donhauser/atlas-agent/model"
	"github.com/donhauser/atlas-agent/ui"
)

// API is the server surface the controller talks to.
type API interface {
	Chat(ctx context.Context, req agent.ChatRequest) (agent.ChatResponse, error)
	Confirm(ctx context.Context, sessionID string, calls []model.ToolCallRequest) ([]agent.ToolCallResult, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// ErrConfirmationRequired is returned when a caller tries to auto-run
// an execute action. Such actions only run through ConfirmTools after
// the user approved them.
var ErrConfirmationRequired = errors.New("execute actions require explicit confirmation")

// Controller coordinates one conversation from the client side. Not
// safe for concurrent use: the client serializes its own requests.
type Controller struct {
	api       API
	sessionID string

	history []llm.ChatMessage
	pending []*model.PendingToolCall
	actions []model.PredictedAction
	uiSpec  *ui.Spec
}

// NewController creates a controller over the given server surface.
func NewController(api API) *Controller {
	return &Controller{api: api}
}

// SessionID returns the current session id, empty before the first
// message and after Clear.
func (c *Controller) SessionID() string { return c.sessionID }

// History returns the messages exchanged so far.
func (c *Controller) History() []llm.ChatMessage { return c.history }

// Pending returns the confirmation gates from the last response.
func (c *Controller) Pending() []*model.PendingToolCall { return c.pending }

// Actions returns the predicted actions from the last response.
func (c *Controller) Actions() []model.PredictedAction { return c.actions }

// UISpec returns the canvas state, nil when nothing is projected.
func (c *Controller) UISpec() *ui.Spec { return c.uiSpec }

// Send submits one user message and folds the response into the
// controller's state. Returns the assistant's reply text.
func (c *Controller) Send(ctx context.Context, message string, turnCtx model.TurnContext) (string, error) {
	c.history = append(c.history, llm.ChatMessage{
		Role: "user", Content: message, Timestamp: time.Now().Unix(),
	})

	resp, err := c.api.Chat(ctx, agent.ChatRequest{
		Message:   message,
		Context:   turnCtx,
		SessionID: c.sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}

	c.sessionID = resp.SessionID
	c.pending = resp.PendingToolCalls
	c.actions = resp.PredictedActions
	c.uiSpec = c.accept(resp.UISpec)
	c.history = append(c.history, llm.ChatMessage{
		Role: "assistant", Content: resp.Content, Timestamp: time.Now().Unix(),
	})
	return resp.Content, nil
}

// AutoRun applies a predicted action without user interaction.
// Navigation and suggestions pass through to the caller; execute
// actions are refused so they go through the confirm affordance.
func (c *Controller) AutoRun(action model.PredictedAction) error {
	if action.Kind == model.ActionExecute || action.RequiresConfirmation {
		return ErrConfirmationRequired
	}
	return nil
}

// ConfirmTools sends the user-approved calls to the server and folds
// the results in. A follow-up UI suggestion on a successful result
// replaces the canvas.
func (c *Controller) ConfirmTools(ctx context.Context, calls []model.ToolCallRequest) ([]agent.ToolCallResult, error) {
	if c.sessionID == "" {
		return nil, fmt.Errorf("no active session")
	}
	results, err := c.api.Confirm(ctx, c.sessionID, calls)
	if err != nil {
		return nil, fmt.Errorf("confirmation failed: %w", err)
	}

	confirmed := make(map[string]bool, len(calls))
	for _, call := range calls {
		confirmed[call.RequestID] = true
	}
	remaining := c.pending[:0]
	for _, p := range c.pending {
		if !confirmed[p.RequestID] {
			remaining = append(remaining, p)
		}
	}
	c.pending = remaining

	for _, r := range results {
		if r.Result.Success && r.Result.UISuggestion != nil {
			c.uiSpec = c.accept(r.Result.UISuggestion)
		}
	}
	return results, nil
}

// DropPending discards a pending call locally after the user dismissed
// its confirm affordance.
func (c *Controller) DropPending(requestID string) {
	remaining := c.pending[:0]
	for _, p := range c.pending {
		if p.RequestID != requestID {
			remaining = append(remaining, p)
		}
	}
	c.pending = remaining
}

// Clear wipes the conversation. The sessionId is reset so the next
// message starts a fresh server session instead of resuming stale
// plan state.
func (c *Controller) Clear(ctx context.Context) error {
	if c.sessionID != "" {
		if err := c.api.ClearSession(ctx, c.sessionID); err != nil {
			return fmt.Errorf("failed to clear server session: %w", err)
		}
	}
	c.sessionID = ""
	c.history = nil
	c.pending = nil
	c.actions = nil
	c.uiSpec = nil
	return nil
}

// accept validates a server-issued spec against the component
// enumeration. Unknown components are dropped, never guessed at.
func (c *Controller) accept(spec *ui.Spec) *ui.Spec {
	if spec == nil {
		return nil
	}
	if err := spec.Validate(); err != nil {
		return nil
	}
	return spec
}
