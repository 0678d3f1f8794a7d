package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/donhauser/atlas-agent/binding"
	"github.com/donhauser/atlas-agent/docstore"
	"github.com/donhauser/atlas-agent/ui"
)

// maxQueryLimit bounds result sizes regardless of what a definition asks for.
const maxQueryLimit = 100

// BuiltinFunc implements a tool whose behavior cannot be expressed
// declaratively. Bound at registration time via RegisterBuiltin.
type BuiltinFunc func(ctx context.Context, store docstore.Store, params map[string]any) (*Result, error)

// Executor runs tool definitions against the document store. It is
// side-effect-agnostic: confirmation of state-changing tools is the
// orchestrator's job, and by the time Execute is called that gate has
// already been passed.
type Executor struct {
	registry *Registry
	store    docstore.Store
	builtins map[string]BuiltinFunc
	logger   *slog.Logger
}

// NewExecutor creates an executor over the given registry and store.
func NewExecutor(registry *Registry, store docstore.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		store:    store,
		builtins: make(map[string]BuiltinFunc),
		logger:   logger,
	}
}

// RegisterBuiltin binds a native handler to a builtin tool id.
func (e *Executor) RegisterBuiltin(id string, fn BuiltinFunc) {
	e.builtins[id] = fn
}

// Execute looks up toolID, validates params, and dispatches on the
// execution type. All failures come back as a failed Result with a
// classified error; Execute itself never panics the turn.
func (e *Executor) Execute(ctx context.Context, toolID string, params map[string]any, bctx binding.Context) *Result {
	def, ok := e.registry.Get(toolID)
	if !ok {
		return FailureResult(NewError(ErrUnknownTool, "tool %q is not registered", toolID))
	}

	params, err := validateParams(def, params)
	if err != nil {
		return FailureResult(err)
	}

	// Resolution context: prior step outputs plus the validated params.
	resCtx := bctx.Clone()
	if resCtx == nil {
		resCtx = binding.Context{}
	}
	for k, v := range params {
		resCtx[k] = v
	}

	var result *Result
	switch def.Execution.Type {
	case ExecSimple:
		result = e.runSimple(ctx, def, resCtx)
	case ExecPipeline:
		result = e.runPipeline(ctx, def, resCtx)
	case ExecBuiltin:
		fn, bound := e.builtins[def.ID]
		if !bound {
			return FailureResult(NewError(ErrUnknownTool, "builtin tool %q has no handler", def.ID))
		}
		r, err := fn(ctx, e.store, params)
		if err != nil {
			return FailureResult(AsAgentError(err))
		}
		result = r
	default:
		return FailureResult(NewError(ErrInvalidParams, "tool %q has unknown execution type %q", def.ID, def.Execution.Type))
	}

	if result.Success() {
		e.attachUIHint(def, result, resCtx)
	} else {
		e.logger.Warn("tool execution failed",
			"tool", def.ID,
			"code", string(result.Error.Code),
			"error", result.Error.Message)
	}
	return result
}

// validateParams applies declared defaults and checks required params.
// Returns the effective param map.
func validateParams(def *Definition, params map[string]any) (map[string]any, *AgentError) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	for _, p := range def.Parameters {
		v, present := out[p.Name]
		if !present || v == nil {
			if p.Default != nil {
				out[p.Name] = p.Default
				continue
			}
			if p.Required {
				return nil, NewError(ErrInvalidParams, "missing required parameter %q", p.Name)
			}
			continue
		}
		if !typeMatches(p.Type, v) {
			return nil, NewError(ErrInvalidParams, "parameter %q must be of type %s", p.Name, p.Type)
		}
	}
	return out, nil
}

func typeMatches(declared string, v any) bool {
	switch declared {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "":
		return true
	}
	return true
}

func (e *Executor) runSimple(ctx context.Context, def *Definition, resCtx binding.Context) *Result {
	exec := def.Execution
	if !def.allowsCollection(exec.Collection) {
		return FailureResult(NewError(ErrForbidden, "tool %q may not access collection %q", def.ID, exec.Collection))
	}

	filter, aerr := resolveFilter(exec.Query, resCtx)
	if aerr != nil {
		return FailureResult(aerr)
	}

	switch exec.Operation {
	case OpFind:
		docs, err := e.store.Find(ctx, exec.Collection, docstore.Query{
			Filter:     filter,
			Projection: exec.Projection,
			Sort:       exec.Sort,
			Limit:      clampLimit(exec.Limit),
		})
		if err != nil {
			return storeFailure(err, "find on %s failed", exec.Collection)
		}
		if docs == nil {
			docs = []docstore.Document{}
		}
		return SuccessResult(docs)

	case OpFindOne:
		doc, err := e.store.FindOne(ctx, exec.Collection, filter)
		if err != nil {
			return storeFailure(err, "findOne on %s failed", exec.Collection)
		}
		var data any
		if doc != nil {
			data = doc
		}
		return SuccessResult(map[string]any{"data": data})

	case OpCount:
		n, err := e.store.Count(ctx, exec.Collection, filter)
		if err != nil {
			return storeFailure(err, "count on %s failed", exec.Collection)
		}
		return SuccessResult(map[string]any{"count": n})

	case OpAggregate:
		pipeline, aerr := resolvePipelineSpec(exec.Pipeline, resCtx)
		if aerr != nil {
			return FailureResult(aerr)
		}
		docs, err := e.store.Aggregate(ctx, exec.Collection, pipeline)
		if err != nil {
			return storeFailure(err, "aggregate on %s failed", exec.Collection)
		}
		if docs == nil {
			docs = []docstore.Document{}
		}
		return SuccessResult(docs)

	case OpInsert:
		doc, aerr := resolveFilter(exec.Document, resCtx)
		if aerr != nil {
			return FailureResult(aerr)
		}
		id, err := e.store.Insert(ctx, exec.Collection, doc)
		if err != nil {
			return storeFailure(err, "insert into %s failed", exec.Collection)
		}
		return SuccessResult(map[string]any{"insertedId": id})

	case OpUpdate:
		update, aerr := resolveFilter(exec.Update, resCtx)
		if aerr != nil {
			return FailureResult(aerr)
		}
		res, err := e.store.Update(ctx, exec.Collection, filter, update)
		if err != nil {
			return storeFailure(err, "update on %s failed", exec.Collection)
		}
		return SuccessResult(map[string]any{"matched": res.Matched, "modified": res.Modified})

	case OpDelete:
		n, err := e.store.Delete(ctx, exec.Collection, filter)
		if err != nil {
			return storeFailure(err, "delete on %s failed", exec.Collection)
		}
		return SuccessResult(map[string]any{"deleted": n})
	}

	return FailureResult(NewError(ErrInvalidParams, "tool %q has unknown operation %q", def.ID, exec.Operation))
}

// resolveFilter template-resolves a query/document/update object. A
// missing binding is a hard failure naming the offending path.
func resolveFilter(template map[string]any, resCtx binding.Context) (map[string]any, *AgentError) {
	if template == nil {
		return map[string]any{}, nil
	}
	resolved, err := binding.ResolveStrict(template, resCtx)
	if err != nil {
		return nil, bindingFailure(err)
	}
	out, ok := resolved.(map[string]any)
	if !ok {
		return nil, NewError(ErrInvalidParams, "template resolved to %T, expected object", resolved)
	}
	return out, nil
}

func resolvePipelineSpec(template []map[string]any, resCtx binding.Context) ([]map[string]any, *AgentError) {
	out := make([]map[string]any, 0, len(template))
	for _, stage := range template {
		resolved, aerr := resolveFilter(stage, resCtx)
		if aerr != nil {
			return nil, aerr
		}
		out = append(out, resolved)
	}
	return out, nil
}

func bindingFailure(err error) *AgentError {
	if ue, ok := binding.AsUnresolved(err); ok {
		return WrapError(ErrUnresolvedBinding, err, "no value bound for {{%s}}", ue.Path)
	}
	return WrapError(ErrUnresolvedBinding, err, "template resolution failed: %v", err)
}

func storeFailure(err error, format string, args ...any) *Result {
	return FailureResult(WrapError(ErrStoreError, err, format+": "+err.Error(), args...))
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// attachUIHint resolves a definition's UI hint against the context plus
// the fresh result and attaches it. A hint that does not survive the
// round trip into a typed spec is dropped, never fatal.
func (e *Executor) attachUIHint(def *Definition, result *Result, resCtx binding.Context) {
	if def.UIHint == nil || result.UISuggestion != nil {
		return
	}

	hintCtx := resCtx.Clone()
	hintCtx["result"] = result.Data

	props, err := binding.Resolve(def.UIHint.Props, hintCtx)
	if err != nil {
		e.logger.Warn("ui hint resolution failed", "tool", def.ID, "error", err)
		return
	}

	raw, err := json.Marshal(map[string]any{
		"componentId": def.UIHint.Component,
		"target":      def.UIHint.Target,
		"props":       props,
	})
	if err != nil {
		e.logger.Warn("ui hint encoding failed", "tool", def.ID, "error", err)
		return
	}
	var spec ui.Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		e.logger.Warn("ui hint does not form a valid spec", "tool", def.ID, "error", err)
		return
	}
	result.UISuggestion = &spec
}
