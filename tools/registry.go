package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the loaded tool definitions.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]*Definition
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a definition after validating it.
// Returns an error if a tool with the same id already exists.
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.ID]; exists {
		return fmt.Errorf("tool %q already registered", def.ID)
	}
	r.defs[def.ID] = def
	r.order = append(r.order, def.ID)
	return nil
}

// Get returns a definition by id.
func (r *Registry) Get(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.defs[id]
	return def, exists
}

// Has checks if a tool exists in the registry.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.defs[id]
	return exists
}

// IDs returns all registered tool ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns definitions in registration order, optionally filtered
// by module. Empty module means all modules.
func (r *Registry) List(module string) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.order))
	for _, id := range r.order {
		def := r.defs[id]
		if module != "" && def.Module != module {
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

// Description returns a formatted description of the registered tools
// for reasoning prompts.
func (r *Registry) Description(module string) string {
	var b strings.Builder
	for _, def := range r.List(module) {
		fmt.Fprintf(&b, "- %s: %s", def.ID, def.Description)
		if len(def.Parameters) > 0 {
			var params []string
			for _, p := range def.Parameters {
				required := "optional"
				if p.Required {
					required = "required"
				}
				params = append(params, fmt.Sprintf("%s (%s, %s)", p.Name, p.Type, required))
			}
			fmt.Fprintf(&b, " [params: %s]", strings.Join(params, ", "))
		}
		if def.RequiresConfirmation {
			b.WriteString(" [requires confirmation]")
		}
		b.WriteString("\n")
	}
	return b.String()
}
