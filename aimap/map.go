// Package aimap routes free-text user intent to pre-authored multi-step
// plans ("maps") and defines the plan format the orchestrator executes.
package aimap

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Condition gates a map step. Describe is the human-readable label shown
// in authoring and logs; When is a boolean expression evaluated against
// the execution context before the step runs.
type Condition struct {
	Describe string `yaml:"describe,omitempty" json:"describe,omitempty"`
	When     string `yaml:"when" json:"when"`

	program *vm.Program
}

// compile prepares the expression once at load time.
func (c *Condition) compile() error {
	program, err := expr.Compile(c.When, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return fmt.Errorf("invalid condition %q: %w", c.When, err)
	}
	c.program = program
	return nil
}

// Eval runs the compiled condition against env. Unknown identifiers read
// as nil, so `existing == nil` holds before the key is ever written.
func (c *Condition) Eval(env map[string]any) (bool, error) {
	if c.program == nil {
		if err := c.compile(); err != nil {
			return false, err
		}
	}
	out, err := expr.Run(c.program, env)
	if err != nil {
		return false, fmt.Errorf("condition %q failed: %w", c.When, err)
	}
	result, _ := out.(bool)
	return result, nil
}

// Step is one authored plan step. ToolID may be empty for pure-prompt
// steps that only produce guidance text.
type Step struct {
	Order          int            `yaml:"order" json:"order"`
	Name           string         `yaml:"name" json:"name"`
	Action         string         `yaml:"action" json:"action"`
	ToolID         string         `yaml:"toolId,omitempty" json:"toolId,omitempty"`
	ParamsTemplate map[string]any `yaml:"paramsTemplate,omitempty" json:"paramsTemplate,omitempty"`
	OutputKey      string         `yaml:"outputKey,omitempty" json:"outputKey,omitempty"`
	NextStepPrompt string         `yaml:"nextStepPrompt,omitempty" json:"nextStepPrompt,omitempty"`
	Condition      *Condition     `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// Map is a pre-authored plan matched by trigger substrings.
type Map struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Triggers    []string `yaml:"triggers" json:"triggers"`
	Module      string   `yaml:"module" json:"module"`
	Priority    int      `yaml:"priority" json:"priority"`
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	Steps       []Step   `yaml:"steps" json:"steps"`
}

// Validate checks structure and compiles step conditions.
func (m *Map) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("map has no id")
	}
	if len(m.Triggers) == 0 {
		return fmt.Errorf("map %s has no triggers", m.ID)
	}
	if len(m.Steps) == 0 {
		return fmt.Errorf("map %s has no steps", m.ID)
	}
	for i, step := range m.Steps {
		if step.Condition != nil {
			if err := m.Steps[i].Condition.compile(); err != nil {
				return fmt.Errorf("map %s step %d: %w", m.ID, i, err)
			}
		}
	}
	return nil
}
