package tools

import (
	"context"

	"github.com/expr-lang/expr"

	"github.com/donhauser/atlas-agent/binding"
	"github.com/donhauser/atlas-agent/docstore"
)

// maxPipelineIterations guards against condition steps forming a cycle.
const maxPipelineIterations = 100

// runPipeline interprets a pipeline execution. Steps run in declared
// order; a condition step may jump to a named step, and a return step
// ends the pipeline early with its resolved template as the tool output.
// Without an explicit return, the last executed step's output wins.
func (e *Executor) runPipeline(ctx context.Context, def *Definition, resCtx binding.Context) *Result {
	steps := def.Execution.Steps
	byName := make(map[string]int, len(steps))
	for i, s := range steps {
		if s.Name != "" {
			byName[s.Name] = i
		}
	}

	locals := resCtx.Clone()
	var lastOutput any
	iterations := 0

	for i := 0; i >= 0 && i < len(steps); {
		if iterations++; iterations > maxPipelineIterations {
			return FailureResult(NewError(ErrInvalidParams, "tool %q: pipeline exceeded %d steps, likely a condition cycle", def.ID, maxPipelineIterations))
		}

		step := &steps[i]
		next := i + 1

		switch step.Type {
		case StepCondition:
			ok, aerr := evalCondition(step, locals)
			if aerr != nil {
				return FailureResult(aerr)
			}
			target := step.ThenStep
			if !ok {
				target = step.ElseStep
			}
			if target != "" {
				next = byName[target]
			}

		case StepReturn:
			resolved, err := binding.Resolve(step.Template, locals)
			if err != nil {
				return FailureResult(bindingFailure(err))
			}
			return SuccessResult(resolved)

		case StepTemplateReplace:
			resolved, err := binding.Resolve(step.Template, locals)
			if err != nil {
				return FailureResult(bindingFailure(err))
			}
			storeOutput(locals, step.OutputKey, resolved)
			lastOutput = resolved

		case StepTransform:
			output, aerr := evalTransform(step, locals)
			if aerr != nil {
				return FailureResult(aerr)
			}
			storeOutput(locals, step.OutputKey, output)
			lastOutput = output

		default:
			output, aerr := e.runDBStep(ctx, def, *step, locals)
			if aerr != nil {
				return FailureResult(aerr)
			}
			storeOutput(locals, step.OutputKey, output)
			lastOutput = output
		}

		i = next
	}

	return SuccessResult(lastOutput)
}

func storeOutput(locals binding.Context, key string, value any) {
	if key != "" {
		locals[key] = value
	}
}

// evalCondition evaluates a step's boolean expression against the
// current locals. The expression is compiled once when the definition
// validates; unknown identifiers evaluate as nil so authored
// expressions like `existing == nil` work before the key exists.
func evalCondition(step *Step, locals binding.Context) (bool, *AgentError) {
	if step.program == nil {
		if err := step.compile(); err != nil {
			return false, WrapError(ErrInvalidParams, err, "invalid condition %q: %v", step.Expression, err)
		}
	}
	out, err := expr.Run(step.program, map[string]any(locals))
	if err != nil {
		return false, WrapError(ErrInvalidParams, err, "condition %q failed: %v", step.Expression, err)
	}
	result, _ := out.(bool)
	return result, nil
}

// evalTransform evaluates a step's expression over the locals. When
// Input names a path its value is additionally exposed as `input`.
func evalTransform(step *Step, locals binding.Context) (any, *AgentError) {
	env := map[string]any(locals.Clone())
	if step.Input != "" {
		value, ok := binding.Lookup(step.Input, locals)
		if !ok {
			return nil, NewError(ErrUnresolvedBinding, "no value bound for {{%s}}", step.Input)
		}
		env["input"] = value
	}

	if step.program == nil {
		if err := step.compile(); err != nil {
			return nil, WrapError(ErrInvalidParams, err, "invalid transform %q: %v", step.Expression, err)
		}
	}
	out, err := expr.Run(step.program, env)
	if err != nil {
		return nil, WrapError(ErrInvalidParams, err, "transform %q failed: %v", step.Expression, err)
	}
	return out, nil
}

// runDBStep executes one db_* step and returns its output value.
func (e *Executor) runDBStep(ctx context.Context, def *Definition, step Step, locals binding.Context) (any, *AgentError) {
	if !def.allowsCollection(step.Collection) {
		return nil, NewError(ErrForbidden, "tool %q may not access collection %q", def.ID, step.Collection)
	}

	filter, aerr := resolveFilter(step.Query, locals)
	if aerr != nil {
		return nil, aerr
	}

	switch step.Type {
	case StepDBQuery:
		if step.Operation == OpFindOne {
			doc, err := e.store.FindOne(ctx, step.Collection, filter)
			if err != nil {
				return nil, WrapError(ErrStoreError, err, "findOne on %s failed: %v", step.Collection, err)
			}
			if doc == nil {
				return nil, nil
			}
			return doc, nil
		}
		docs, err := e.store.Find(ctx, step.Collection, docstore.Query{
			Filter:     filter,
			Projection: step.Projection,
			Sort:       step.Sort,
			Limit:      clampLimit(step.Limit),
		})
		if err != nil {
			return nil, WrapError(ErrStoreError, err, "find on %s failed: %v", step.Collection, err)
		}
		if docs == nil {
			docs = []docstore.Document{}
		}
		return docs, nil

	case StepDBAggregate:
		pipeline, aerr := resolvePipelineSpec(step.Pipeline, locals)
		if aerr != nil {
			return nil, aerr
		}
		docs, err := e.store.Aggregate(ctx, step.Collection, pipeline)
		if err != nil {
			return nil, WrapError(ErrStoreError, err, "aggregate on %s failed: %v", step.Collection, err)
		}
		if docs == nil {
			docs = []docstore.Document{}
		}
		return docs, nil

	case StepDBInsert:
		doc, aerr := resolveFilter(step.Document, locals)
		if aerr != nil {
			return nil, aerr
		}
		id, err := e.store.Insert(ctx, step.Collection, doc)
		if err != nil {
			return nil, WrapError(ErrStoreError, err, "insert into %s failed: %v", step.Collection, err)
		}
		return map[string]any{"insertedId": id}, nil

	case StepDBUpdate:
		update, aerr := resolveFilter(step.Update, locals)
		if aerr != nil {
			return nil, aerr
		}
		res, err := e.store.Update(ctx, step.Collection, filter, update)
		if err != nil {
			return nil, WrapError(ErrStoreError, err, "update on %s failed: %v", step.Collection, err)
		}
		return map[string]any{"matched": res.Matched, "modified": res.Modified}, nil

	case StepDBDelete:
		n, err := e.store.Delete(ctx, step.Collection, filter)
		if err != nil {
			return nil, WrapError(ErrStoreError, err, "delete on %s failed: %v", step.Collection, err)
		}
		return map[string]any{"deleted": n}, nil
	}

	return nil, NewError(ErrInvalidParams, "tool %q: unknown step type %q", def.ID, step.Type)
}
