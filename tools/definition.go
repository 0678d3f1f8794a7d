// Package tools provides the declarative tool layer of the agent: tool
// definitions authored in YAML, a registry for lookup, and an executor
// that runs a definition's execution descriptor against the document
// store through the binding engine.
package tools

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/donhauser/atlas-agent/ui"
)

// Parameter declares one tool parameter.
type Parameter struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"` // string, number, boolean, object, array
	Description string `yaml:"description" json:"description"`
	Required    bool   `yaml:"required" json:"required"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// Execution strategies.
const (
	ExecSimple   = "simple"
	ExecPipeline = "pipeline"
	ExecBuiltin  = "builtin"
)

// Simple operation kinds.
const (
	OpFind      = "find"
	OpFindOne   = "findOne"
	OpCount     = "count"
	OpAggregate = "aggregate"
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpDelete    = "delete"
)

// Execution describes how a tool runs. Type selects the strategy; the
// remaining fields belong to one strategy each. Query, Document, Update
// and Pipeline are templates resolved against the execution context
// before the store sees them.
type Execution struct {
	Type string `yaml:"type" json:"type"`

	// simple
	Operation  string           `yaml:"operation,omitempty" json:"operation,omitempty"`
	Collection string           `yaml:"collection,omitempty" json:"collection,omitempty"`
	Query      map[string]any   `yaml:"query,omitempty" json:"query,omitempty"`
	Projection map[string]any   `yaml:"projection,omitempty" json:"projection,omitempty"`
	Sort       map[string]int   `yaml:"sort,omitempty" json:"sort,omitempty"`
	Limit      int              `yaml:"limit,omitempty" json:"limit,omitempty"`
	Document   map[string]any   `yaml:"document,omitempty" json:"document,omitempty"`
	Update     map[string]any   `yaml:"update,omitempty" json:"update,omitempty"`
	Pipeline   []map[string]any `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`

	// pipeline
	Steps []Step `yaml:"steps,omitempty" json:"steps,omitempty"`
}

// Step kinds for pipeline executions.
const (
	StepDBQuery         = "db_query"
	StepDBAggregate     = "db_aggregate"
	StepDBInsert        = "db_insert"
	StepDBUpdate        = "db_update"
	StepDBDelete        = "db_delete"
	StepTemplateReplace = "template_replace"
	StepTransform       = "transform"
	StepCondition       = "condition"
	StepReturn          = "return"
)

// Step is one typed instruction of a pipeline execution. Steps run in
// declared order unless a condition step redirects to a named step.
type Step struct {
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	Type      string `yaml:"type" json:"type"`
	OutputKey string `yaml:"outputKey,omitempty" json:"outputKey,omitempty"`

	// db_* steps
	Collection string           `yaml:"collection,omitempty" json:"collection,omitempty"`
	Operation  string           `yaml:"operation,omitempty" json:"operation,omitempty"` // db_query: find or findOne
	Query      map[string]any   `yaml:"query,omitempty" json:"query,omitempty"`
	Projection map[string]any   `yaml:"projection,omitempty" json:"projection,omitempty"`
	Sort       map[string]int   `yaml:"sort,omitempty" json:"sort,omitempty"`
	Limit      int              `yaml:"limit,omitempty" json:"limit,omitempty"`
	Document   map[string]any   `yaml:"document,omitempty" json:"document,omitempty"`
	Update     map[string]any   `yaml:"update,omitempty" json:"update,omitempty"`
	Pipeline   []map[string]any `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`

	// template_replace and return
	Template any `yaml:"template,omitempty" json:"template,omitempty"`

	// transform
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
	Input      string `yaml:"input,omitempty" json:"input,omitempty"`

	// condition: Expression above holds the boolean expression
	ThenStep string `yaml:"thenStep,omitempty" json:"thenStep,omitempty"`
	ElseStep string `yaml:"elseStep,omitempty" json:"elseStep,omitempty"`

	// program is the Expression compiled once at validation time.
	program *vm.Program
}

// UIHint lets a tool suggest a client component for its result. The
// props template resolves against the execution context after the tool
// runs; an invalid resolved spec degrades to text at the bridge.
type UIHint struct {
	Component ui.ComponentID `yaml:"component" json:"component"`
	Target    string         `yaml:"target,omitempty" json:"target,omitempty"`
	Props     map[string]any `yaml:"props" json:"props"`
}

// Definition is a declaratively authored tool. Immutable once loaded.
type Definition struct {
	ID                   string      `yaml:"id" json:"id"`
	Name                 string      `yaml:"name" json:"name"`
	Description          string      `yaml:"description" json:"description"`
	Module               string      `yaml:"module" json:"module"`
	Parameters           []Parameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Execution            Execution   `yaml:"execution" json:"execution"`
	RequiresConfirmation bool        `yaml:"requiresConfirmation" json:"requiresConfirmation"`
	// Permissions is a collection allow-list. Empty means unrestricted.
	Permissions []string `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	UIHint      *UIHint  `yaml:"uiHint,omitempty" json:"uiHint,omitempty"`
}

// Validate checks structural consistency of a loaded definition.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("tool has no id")
	}
	switch d.Execution.Type {
	case ExecSimple:
		switch d.Execution.Operation {
		case OpFind, OpFindOne, OpCount, OpAggregate, OpInsert, OpUpdate, OpDelete:
		default:
			return fmt.Errorf("tool %s: unknown operation %q", d.ID, d.Execution.Operation)
		}
		if d.Execution.Collection == "" {
			return fmt.Errorf("tool %s: simple execution needs a collection", d.ID)
		}
	case ExecPipeline:
		if len(d.Execution.Steps) == 0 {
			return fmt.Errorf("tool %s: pipeline execution has no steps", d.ID)
		}
		if err := validateSteps(d.ID, d.Execution.Steps); err != nil {
			return err
		}
	case ExecBuiltin:
		// handler is bound at registration time
	default:
		return fmt.Errorf("tool %s: unknown execution type %q", d.ID, d.Execution.Type)
	}
	for _, p := range d.Parameters {
		if p.Name == "" {
			return fmt.Errorf("tool %s: parameter without a name", d.ID)
		}
	}
	return nil
}

func validateSteps(toolID string, steps []Step) error {
	names := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.Name != "" {
			if names[s.Name] {
				return fmt.Errorf("tool %s: duplicate step name %q", toolID, s.Name)
			}
			names[s.Name] = true
		}
	}
	for i := range steps {
		s := &steps[i]
		switch s.Type {
		case StepDBQuery, StepDBAggregate, StepDBInsert, StepDBUpdate, StepDBDelete:
			if s.Collection == "" {
				return fmt.Errorf("tool %s: step %d (%s) needs a collection", toolID, i, s.Type)
			}
		case StepCondition:
			if strings.TrimSpace(s.Expression) == "" {
				return fmt.Errorf("tool %s: step %d condition has no expression", toolID, i)
			}
			if err := s.compile(); err != nil {
				return fmt.Errorf("tool %s: step %d: %w", toolID, i, err)
			}
			for _, target := range []string{s.ThenStep, s.ElseStep} {
				if target != "" && !names[target] {
					return fmt.Errorf("tool %s: step %d jumps to unknown step %q", toolID, i, target)
				}
			}
		case StepTransform:
			if strings.TrimSpace(s.Expression) == "" {
				return fmt.Errorf("tool %s: step %d transform has no expression", toolID, i)
			}
			if err := s.compile(); err != nil {
				return fmt.Errorf("tool %s: step %d: %w", toolID, i, err)
			}
		case StepTemplateReplace, StepReturn:
			if s.Template == nil {
				return fmt.Errorf("tool %s: step %d (%s) has no template", toolID, i, s.Type)
			}
		default:
			return fmt.Errorf("tool %s: step %d has unknown type %q", toolID, i, s.Type)
		}
	}
	return nil
}

// compile prepares a condition or transform expression once at load
// time. Unknown identifiers evaluate as nil at run time, so authored
// expressions may reference keys that are not bound yet.
func (s *Step) compile() error {
	opts := []expr.Option{expr.AllowUndefinedVariables()}
	if s.Type == StepCondition {
		opts = append(opts, expr.AsBool())
	}
	program, err := expr.Compile(s.Expression, opts...)
	if err != nil {
		return fmt.Errorf("invalid %s expression %q: %w", s.Type, s.Expression, err)
	}
	s.program = program
	return nil
}

// allowsCollection checks the permission list.
func (d *Definition) allowsCollection(collection string) bool {
	if len(d.Permissions) == 0 {
		return true
	}
	for _, p := range d.Permissions {
		if p == collection {
			return true
		}
	}
	return false
}
