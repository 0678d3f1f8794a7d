package aimap

import (
	"fmt"
	"strings"
	"sync"
)

// Scopes is the module allow-list configuration: for each caller module
// scope, the map modules it may match against. A scope absent from the
// table matches only maps of its own module.
type Scopes map[string][]string

// Allowed reports whether a caller in scope may use maps of mapModule.
func (s Scopes) Allowed(scope, mapModule string) bool {
	allowed, configured := s[scope]
	if !configured {
		return scope == mapModule
	}
	for _, m := range allowed {
		if m == mapModule {
			return true
		}
	}
	return false
}

// Matcher selects the plan for an incoming message. Matching is
// deterministic: enabled maps in the caller's scope, trigger substring
// containment, highest priority wins, declaration order breaks ties.
type Matcher struct {
	mu     sync.RWMutex
	maps   []*Map
	scopes Scopes
}

// NewMatcher creates a matcher over the given scope configuration.
func NewMatcher(scopes Scopes) *Matcher {
	return &Matcher{scopes: scopes}
}

// Register adds a map in declaration order.
func (m *Matcher) Register(plan *Map) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.maps {
		if existing.ID == plan.ID {
			return fmt.Errorf("map %q already registered", plan.ID)
		}
	}
	m.maps = append(m.maps, plan)
	return nil
}

// Maps returns the registered maps in declaration order.
func (m *Matcher) Maps() []*Map {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Map, len(m.maps))
	copy(out, m.maps)
	return out
}

// Match returns the map for message within the caller's module scope,
// or nil when no map matches and the turn should fall through to
// single-turn reasoning.
func (m *Matcher) Match(message, scope string) *Map {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Map
	for _, plan := range m.maps {
		if !plan.Enabled {
			continue
		}
		if !m.scopes.Allowed(scope, plan.Module) {
			continue
		}
		if !triggered(plan, message) {
			continue
		}
		// Declaration order already breaks priority ties, so a strict
		// greater-than keeps the earliest registered winner.
		if best == nil || plan.Priority > best.Priority {
			best = plan
		}
	}
	return best
}

// triggered tests each trigger substring in order; first hit wins.
func triggered(plan *Map, message string) bool {
	for _, trigger := range plan.Triggers {
		if trigger != "" && strings.Contains(message, trigger) {
			return true
		}
	}
	return false
}
