// Package agent coordinates one chat turn: route the message to an
// authored plan when a map matches, otherwise fall through to
// single-turn reasoning with the collaborator, folding tool calls and
// confirmation gates into the response either way.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/donhauser/atlas-agent/aimap"
	"github.com/donhauser/atlas-agent/binding"
	"github.com/donhauser/atlas-agent/internal/jsonx"
	"github.com/donhauser/atlas-agent/llm"
	"github.com/donhauser/atlas-agent/model"
	"github.com/donhauser/atlas-agent/orchestrator"
	"github.com/donhauser/atlas-agent/session"
	"github.com/donhauser/atlas-agent/tools"
	"github.com/donhauser/atlas-agent/ui"
)

// maxToolRounds bounds the single-turn reasoning loop: the collaborator
// may chain at most this many rounds of tool calls per turn.
const maxToolRounds = 4

// Agent drives chat turns. One instance serves all sessions.
type Agent struct {
	provider llm.Provider
	matcher  *aimap.Matcher
	orch     *orchestrator.Orchestrator
	executor *tools.Executor
	registry *tools.Registry
	sessions *session.Manager
	bridge   *ui.Bridge
	logger   *slog.Logger
}

// Deps are the collaborators an Agent is wired from.
type Deps struct {
	Provider llm.Provider
	Matcher  *aimap.Matcher
	Executor *tools.Executor
	Registry *tools.Registry
	Sessions *session.Manager
	Logger   *slog.Logger
}

// New creates an agent.
func New(deps Deps) *Agent {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		provider: deps.Provider,
		matcher:  deps.Matcher,
		orch:     orchestrator.New(deps.Executor, deps.Registry, logger),
		executor: deps.Executor,
		registry: deps.Registry,
		sessions: deps.Sessions,
		bridge:   ui.NewBridge(logger),
		logger:   logger,
	}
}

// Chat processes one user turn and returns the complete response.
func (a *Agent) Chat(ctx context.Context, req ChatRequest) ChatResponse {
	s := a.sessions.GetOrCreate(ctx, req.SessionID)
	a.sessions.Append(ctx, s, llm.UserMessage(req.Message))

	resp := ChatResponse{SessionID: s.ID}

	if plan := a.matcher.Match(req.Message, req.Context.Module); plan != nil {
		a.logger.Info("matched plan",
			"sessionId", s.ID,
			"map", plan.ID,
			"module", req.Context.Module)
		params := a.extractParams(ctx, req.Message, plan)
		run := a.orch.Start(ctx, plan, params)
		a.sessions.SetRun(s, run)
		a.describeRun(ctx, run, &resp)
	} else {
		a.reason(ctx, s, req, &resp)
	}

	a.sessions.Append(ctx, s, llm.AssistantMessage(resp.Content))
	return resp
}

// Confirm resolves approved confirmation gates. Calls belonging to a
// suspended plan resume it; calls pending from single-turn reasoning
// execute directly. Retrying with an unchanged requestId replays the
// recorded result.
func (a *Agent) Confirm(ctx context.Context, sessionID string, calls []model.ToolCallRequest) ([]ToolCallResult, error) {
	s, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("unknown session %q", sessionID)
	}

	results := make([]ToolCallResult, 0, len(calls))
	for _, call := range calls {
		result, err := a.confirmOne(ctx, s, call)
		if err != nil {
			return nil, err
		}
		results = append(results, ToolCallResult{ToolID: call.ToolID, Result: wireResult(result)})
	}
	return results, nil
}

func (a *Agent) confirmOne(ctx context.Context, s *session.Session, call model.ToolCallRequest) (*tools.Result, error) {
	if s.Run != nil {
		// A retried confirm replays the recorded result even after the
		// run reached a terminal state.
		if result, done := s.Run.Executed(call.RequestID); done {
			return result, nil
		}
		if !s.Run.Terminal() {
			return a.orch.Confirm(ctx, s.Run, call.RequestID)
		}
	}
	if pending := a.sessions.TakePending(s, call.RequestID); pending != nil {
		return a.executor.Execute(ctx, pending.ToolID, pending.Params, binding.Context{}), nil
	}
	return nil, fmt.Errorf("requestId %q matches no pending call", call.RequestID)
}

// Reject declines a pending confirmation. For a suspended plan this is
// terminal; for a single-turn pending call it is simply dropped.
func (a *Agent) Reject(sessionID, requestID string) error {
	s, ok := a.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	if s.Run != nil && !s.Run.Terminal() {
		return a.orch.Reject(s.Run, requestID)
	}
	if pending := a.sessions.TakePending(s, requestID); pending != nil {
		return nil
	}
	return fmt.Errorf("requestId %q matches no pending call", requestID)
}

// HandleEvent folds a client UI event into the session. Approve and
// reject resolve confirmation gates; submit runs the projected form's
// tool with the submitted values.
func (a *Agent) HandleEvent(ctx context.Context, sessionID string, event ui.Event) (*ToolCallResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	switch event.Type {
	case ui.EventApprove:
		results, err := a.Confirm(ctx, sessionID, []model.ToolCallRequest{{RequestID: event.RequestID()}})
		if err != nil {
			return nil, err
		}
		return &results[0], nil
	case ui.EventReject, ui.EventCancel:
		return nil, a.Reject(sessionID, event.RequestID())
	case ui.EventSubmit:
		toolID, _ := event.Payload["toolId"].(string)
		if toolID == "" {
			return nil, fmt.Errorf("submit event carries no toolId")
		}
		params, _ := event.Payload["values"].(map[string]any)
		result := a.executor.Execute(ctx, toolID, params, binding.Context{})
		out := ToolCallResult{ToolID: toolID, Result: wireResult(result)}
		return &out, nil
	default:
		// select and update only adjust client-side state.
		return nil, nil
	}
}

// EnsureSession resolves a session id, creating the session when the
// id is empty or unknown. Callers that need the id before the turn
// resolves (the streaming endpoint's start event) use this.
func (a *Agent) EnsureSession(ctx context.Context, sessionID string) string {
	return a.sessions.GetOrCreate(ctx, sessionID).ID
}

// Clear removes a session and its history. The next message with no
// sessionId starts fresh server state.
func (a *Agent) Clear(ctx context.Context, sessionID string) error {
	return a.sessions.Clear(ctx, sessionID)
}

// Health reports the configured provider and tool surface.
func (a *Agent) Health() map[string]any {
	return map[string]any{
		"status":    "ok",
		"provider":  a.provider.Name(),
		"model":     a.provider.Model(),
		"toolCount": len(a.registry.IDs()),
		"mapCount":  len(a.matcher.Maps()),
	}
}

// extractParams asks the collaborator to pull the plan's user-supplied
// parameters out of the message. Extraction failures degrade to seeding
// only the raw message; a step that needed more fails with the missing
// path named, and the reply asks the user for it.
func (a *Agent) extractParams(ctx context.Context, message string, plan *aimap.Map) binding.Context {
	params := binding.Context{"message": message}

	needed := userParams(plan)
	needed = without(needed, "message")
	if len(needed) == 0 {
		return params
	}

	reply, err := a.provider.Chat(ctx, []llm.ChatMessage{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(extractionPrompt(message, needed)),
	})
	if err != nil {
		a.logger.Warn("parameter extraction failed", "map", plan.ID, "error", err)
		return params
	}
	obj, err := jsonx.ExtractObject(reply.Content)
	if err != nil {
		a.logger.Warn("parameter extraction returned no JSON", "map", plan.ID, "error", err)
		return params
	}
	for key, value := range obj {
		if value != nil {
			params[key] = value
		}
	}
	return params
}

// describeRun turns the run's terminal or suspended state into the
// response for this turn.
func (a *Agent) describeRun(ctx context.Context, run *orchestrator.Run, resp *ChatResponse) {
	switch run.State {
	case orchestrator.StateAwaitingConfirmation:
		pending := run.Pending
		reason := pending.Reason
		if reason == "" {
			reason = pending.ToolID
		}
		resp.Content = fmt.Sprintf("即将执行操作：%s。请确认是否继续。", reason)
		resp.PendingToolCalls = []*model.PendingToolCall{pending}
		resp.PredictedActions = []model.PredictedAction{{
			Kind:                 model.ActionExecute,
			Label:                reason,
			ToolID:               pending.ToolID,
			Params:               pending.Params,
			RequestID:            pending.RequestID,
			RequiresConfirmation: true,
		}}
		resp.UISpec = a.bridge.Emit(run.LastUISuggestion)

	case orchestrator.StateCompleted:
		resp.UISpec = a.bridge.Emit(run.LastUISuggestion)
		resp.Content = a.phrase(ctx, run.Guidance)

	case orchestrator.StateFailed:
		resp.Error = &WireError{Code: string(run.Failure.Code), Message: run.Failure.Message}
		resp.Content = failureMessage(run.Failure)
	}
}

// phrase turns accumulated plan guidance into the user-facing reply,
// falling back to the raw guidance text when the collaborator errors.
func (a *Agent) phrase(ctx context.Context, guidance []string) string {
	if len(guidance) == 0 {
		return "操作已完成。"
	}
	fallback := strings.Join(guidance, "\n")

	reply, err := a.provider.Chat(ctx, []llm.ChatMessage{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(phrasePrompt(guidance)),
	})
	if err != nil || strings.TrimSpace(reply.Content) == "" {
		if err != nil {
			a.logger.Warn("guidance phrasing failed", "error", err)
		}
		return fallback
	}
	return reply.Content
}

func failureMessage(err *tools.AgentError) string {
	switch err.Code {
	case tools.ErrUnresolvedBinding:
		return fmt.Sprintf("我还缺少完成该操作所需的信息（%s），请补充后再试。", err.Message)
	case tools.ErrConfirmationRejected:
		return "已取消该操作。"
	case tools.ErrForbidden:
		return "该操作不在允许的范围内。"
	default:
		return fmt.Sprintf("操作失败：%s", err.Message)
	}
}

// reason is the single-turn fallback: no plan matched, so the
// collaborator answers directly, optionally calling tools. A
// confirmation-gated tool request suspends the loop the same way a
// plan step would.
func (a *Agent) reason(ctx context.Context, s *session.Session, req ChatRequest, resp *ChatResponse) {
	messages := append([]llm.ChatMessage{llm.SystemMessage(systemPrompt)}, s.History...)
	toolDefs := a.toolDefinitions(req.Context.Module)

	for round := 0; round < maxToolRounds; round++ {
		reply, err := a.provider.ChatWithTools(ctx, messages, toolDefs)
		if err != nil {
			a.logger.Warn("collaborator call failed", "sessionId", s.ID, "error", err)
			resp.Content = "抱歉，我暂时无法处理这个请求，请稍后再试。"
			resp.Error = &WireError{Code: "ProviderError", Message: err.Error()}
			return
		}
		if len(reply.ToolCalls) == 0 {
			resp.Content = reply.Content
			return
		}

		messages = append(messages, llm.ChatMessage{
			Role:      "assistant",
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})

		for _, call := range reply.ToolCalls {
			var params map[string]any
			if len(call.Arguments) > 0 {
				if err := json.Unmarshal(call.Arguments, &params); err != nil {
					messages = append(messages, llm.ToolResultMessage(call.ID,
						fmt.Sprintf("invalid tool arguments: %v", err)))
					continue
				}
			}

			if def, ok := a.registry.Get(call.Name); ok && def.RequiresConfirmation {
				pending := &model.PendingToolCall{
					ToolID:    call.Name,
					Params:    params,
					RequestID: uuid.NewString(),
					Reason:    def.Name,
				}
				a.sessions.AddPending(s, pending)
				resp.Content = fmt.Sprintf("即将执行操作：%s。请确认是否继续。", def.Name)
				resp.PendingToolCalls = append(resp.PendingToolCalls, pending)
				resp.PredictedActions = append(resp.PredictedActions, model.PredictedAction{
					Kind:                 model.ActionExecute,
					Label:                def.Name,
					ToolID:               pending.ToolID,
					Params:               pending.Params,
					RequestID:            pending.RequestID,
					RequiresConfirmation: true,
				})
				return
			}

			result := a.executor.Execute(ctx, call.Name, params, binding.Context{})
			resp.ToolResults = append(resp.ToolResults, ToolCallResult{ToolID: call.Name, Result: wireResult(result)})
			if result.UISuggestion != nil {
				resp.UISpec = a.bridge.Emit(result.UISuggestion)
			}
			messages = append(messages, llm.ToolResultMessage(call.ID, result.String()))
		}
	}

	resp.Content = "这个请求涉及的步骤过多，请把任务拆小一点再试。"
}

// toolDefinitions converts the module's registered tools into the
// collaborator's tool schema.
func (a *Agent) toolDefinitions(module string) []llm.ToolDefinition {
	defs := a.registry.List(module)
	if module != "" && module != "system" {
		// system tools (schema introspection) are available everywhere
		defs = append(defs, a.registry.List("system")...)
	}
	out := make([]llm.ToolDefinition, 0, len(defs))
	for _, def := range defs {
		properties := map[string]any{}
		var required []string
		for _, p := range def.Parameters {
			properties[p.Name] = map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		schema := map[string]any{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			schema["required"] = required
		}
		out = append(out, llm.ToolDefinition{
			Name:        def.ID,
			Description: def.Description,
			Parameters:  schema,
		})
	}
	return out
}

func without(values []string, drop string) []string {
	out := values[:0]
	for _, v := range values {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}
