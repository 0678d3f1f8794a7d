// Package orchestrator executes a matched plan step by step, threading
// variables between steps through the binding engine and gating
// state-changing tools behind explicit confirmation.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/donhauser/atlas-agent/aimap"
	"github.com/donhauser/atlas-agent/binding"
	"github.com/donhauser/atlas-agent/model"
	"github.com/donhauser/atlas-agent/tools"
	"github.com/donhauser/atlas-agent/ui"
)

// State of a plan run.
type State string

const (
	StateRunning              State = "running"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
	StateAwaitingConfirmation State = "awaiting_confirmation"
)

// Run is one plan instance. It lives inside a session and is never
// shared across conversations.
type Run struct {
	Plan      *aimap.Map
	State     State
	StepIndex int

	// Context accumulates step outputs under their outputKeys on top of
	// the user-supplied parameters.
	Context binding.Context

	// Pending is the confirmation gate: set while awaiting_confirmation,
	// nil otherwise.
	Pending *model.PendingToolCall

	// Guidance collects rendered nextStepPrompt texts for the reasoning
	// collaborator.
	Guidance []string

	// LastUISuggestion is the most recent rendering hint produced by a
	// step's tool.
	LastUISuggestion *ui.Spec

	// Failure classifies a failed run.
	Failure *tools.AgentError

	// executed records confirmed calls by requestId so a retried confirm
	// replays the recorded result instead of running the tool twice.
	executed map[string]*tools.Result
}

// Terminal reports whether the run can make no further progress.
func (r *Run) Terminal() bool {
	return r.State == StateCompleted || r.State == StateFailed
}

// Executed returns the recorded result of an already-confirmed call.
// The record outlives the run's terminal state so a retried confirm
// still replays instead of erroring.
func (r *Run) Executed(requestID string) (*tools.Result, bool) {
	result, ok := r.executed[requestID]
	return result, ok
}

// Orchestrator drives plan runs through the tool executor.
type Orchestrator struct {
	executor *tools.Executor
	registry *tools.Registry
	logger   *slog.Logger
}

// New creates an orchestrator.
func New(executor *tools.Executor, registry *tools.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{executor: executor, registry: registry, logger: logger}
}

// Start creates a run for plan seeded with the user-supplied params and
// advances it until it completes, fails, or suspends on a confirmation.
func (o *Orchestrator) Start(ctx context.Context, plan *aimap.Map, params binding.Context) *Run {
	run := &Run{
		Plan:     plan,
		State:    StateRunning,
		Context:  params.Clone(),
		executed: make(map[string]*tools.Result),
	}
	if run.Context == nil {
		run.Context = binding.Context{}
	}
	o.advance(ctx, run)
	return run
}

// advance executes steps in order until a terminal state or suspension.
func (o *Orchestrator) advance(ctx context.Context, run *Run) {
	steps := run.Plan.Steps
	for run.State == StateRunning && run.StepIndex < len(steps) {
		step := &steps[run.StepIndex]

		if step.Condition != nil {
			ok, err := step.Condition.Eval(run.Context)
			if err != nil {
				o.fail(run, tools.WrapError(tools.ErrInvalidParams, err, "step %q condition failed: %v", step.Name, err))
				return
			}
			if !ok {
				o.logger.Debug("skipping step, condition false",
					"map", run.Plan.ID,
					"step", step.Name,
					"condition", step.Condition.Describe)
				run.StepIndex++
				continue
			}
		}

		if step.ToolID == "" {
			o.renderGuidance(run, step)
			run.StepIndex++
			continue
		}

		params, aerr := resolveParams(step, run.Context)
		if aerr != nil {
			o.fail(run, aerr)
			return
		}

		if def, ok := o.registry.Get(step.ToolID); ok && def.RequiresConfirmation {
			run.State = StateAwaitingConfirmation
			run.Pending = &model.PendingToolCall{
				ToolID:    step.ToolID,
				Params:    params,
				RequestID: uuid.NewString(),
				Reason:    step.Action,
			}
			o.logger.Info("plan suspended awaiting confirmation",
				"map", run.Plan.ID,
				"step", step.Name,
				"tool", step.ToolID,
				"requestId", run.Pending.RequestID)
			return
		}

		result := o.executor.Execute(ctx, step.ToolID, params, run.Context)
		if !o.recordResult(run, step, result) {
			return
		}
		run.StepIndex++
	}

	if run.State == StateRunning {
		run.State = StateCompleted
		o.logger.Info("plan completed", "map", run.Plan.ID)
	}
}

// Confirm approves the pending call identified by requestID and resumes
// the plan. Retrying a confirm with an already-executed requestID
// replays the recorded result; the tool runs exactly once.
func (o *Orchestrator) Confirm(ctx context.Context, run *Run, requestID string) (*tools.Result, error) {
	if result, done := run.executed[requestID]; done {
		return result, nil
	}
	if run.State != StateAwaitingConfirmation || run.Pending == nil {
		return nil, fmt.Errorf("no confirmation pending")
	}
	if run.Pending.RequestID != requestID {
		return nil, fmt.Errorf("requestId %q does not match the pending call", requestID)
	}

	pending := run.Pending
	step := &run.Plan.Steps[run.StepIndex]
	run.Pending = nil
	run.State = StateRunning

	result := o.executor.Execute(ctx, pending.ToolID, pending.Params, run.Context)
	run.executed[requestID] = result

	if !o.recordResult(run, step, result) {
		return result, nil
	}
	run.StepIndex++
	o.advance(ctx, run)
	return result, nil
}

// Reject declines the pending call. Rejection is terminal for the plan
// instance; the user must restart the intent. No store mutation occurs.
func (o *Orchestrator) Reject(run *Run, requestID string) error {
	if run.State != StateAwaitingConfirmation || run.Pending == nil {
		return fmt.Errorf("no confirmation pending")
	}
	if run.Pending.RequestID != requestID {
		return fmt.Errorf("requestId %q does not match the pending call", requestID)
	}

	run.Pending = nil
	o.fail(run, tools.NewError(tools.ErrConfirmationRejected, "用户取消了该操作"))
	return nil
}

// recordResult folds a step result into the run. Returns false when the
// result failed and the run is now terminal.
func (o *Orchestrator) recordResult(run *Run, step *aimap.Step, result *tools.Result) bool {
	if !result.Success() {
		o.fail(run, result.Error)
		return false
	}
	if step.OutputKey != "" {
		run.Context[step.OutputKey] = result.Data
	}
	if result.UISuggestion != nil {
		run.LastUISuggestion = result.UISuggestion
	}
	o.renderGuidance(run, step)
	return true
}

func (o *Orchestrator) renderGuidance(run *Run, step *aimap.Step) {
	if step.NextStepPrompt == "" {
		return
	}
	run.Guidance = append(run.Guidance, binding.ResolveString(step.NextStepPrompt, run.Context))
}

// fail moves the run to its terminal failed state. The partial context
// is discarded; already-executed side effects are not rolled back.
func (o *Orchestrator) fail(run *Run, err *tools.AgentError) {
	run.State = StateFailed
	run.Failure = err
	run.Context = binding.Context{}
	o.logger.Warn("plan failed",
		"map", run.Plan.ID,
		"code", string(err.Code),
		"error", err.Message)
}

// resolveParams resolves a step's params template. A missing binding is
// a hard failure naming the path so the collaborator can re-ask for it.
func resolveParams(step *aimap.Step, ctx binding.Context) (map[string]any, *tools.AgentError) {
	if step.ParamsTemplate == nil {
		return map[string]any{}, nil
	}
	resolved, err := binding.ResolveStrict(step.ParamsTemplate, ctx)
	if err != nil {
		if ue, ok := binding.AsUnresolved(err); ok {
			return nil, tools.WrapError(tools.ErrUnresolvedBinding, err, "no value bound for {{%s}}", ue.Path)
		}
		return nil, tools.WrapError(tools.ErrUnresolvedBinding, err, "params resolution failed: %v", err)
	}
	params, ok := resolved.(map[string]any)
	if !ok {
		return nil, tools.NewError(tools.ErrInvalidParams, "params template resolved to %T, expected object", resolved)
	}
	return params, nil
}
