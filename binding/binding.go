// Package binding resolves {{path}} placeholders against an accumulating
// execution context.
//
// A template is a string or nested object whose string leaves may be exactly
// one placeholder (replaced by the referenced value with its native type) or
// contain placeholders embedded in literal text (replaced by string forms and
// concatenated). Paths are dotted and may index arrays: {{clients[0].name}}.
package binding

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Context is the per-turn variable environment: user-supplied parameters
// merged with prior step outputs keyed by outputKey. It grows monotonically
// across a plan's steps and is never shared across conversations.
type Context map[string]any

// Clone returns a shallow copy. Step outputs are stored by key, so a shallow
// copy is enough to isolate a pipeline's local bindings from the caller's.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// UnresolvedError reports a placeholder whose path does not exist in the
// context. The path is always named so the caller can re-ask for the value.
type UnresolvedError struct {
	Path string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved binding: %q not found in context", e.Path)
}

// AsUnresolved extracts an UnresolvedError from err if there is one.
func AsUnresolved(err error) (*UnresolvedError, bool) {
	var ue *UnresolvedError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// exactPlaceholder reports whether s is a single placeholder and nothing
// else, in which case resolution keeps the referenced value's native type.
func exactPlaceholder(s string) (string, bool) {
	m := placeholderRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	if strings.TrimSpace(s) != m[0] {
		return "", false
	}
	return m[1], true
}

// Lookup walks a dotted, array-indexed path into the context. Navigation is
// read-only. The second return is false when any segment is absent.
func Lookup(path string, ctx Context) (any, bool) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, false
	}

	var current any = map[string]any(ctx)
	for _, seg := range segments {
		if seg.index >= 0 {
			arr, ok := toSlice(current)
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			current = arr[seg.index]
			continue
		}

		obj, ok := toMap(current)
		if !ok {
			return nil, false
		}
		v, ok := obj[seg.key]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

// Resolve substitutes every placeholder in template against ctx. Paths that
// do not exist resolve to nil (exact placeholder) or the empty string
// (embedded placeholder); callers resolving a required field use
// ResolveStrict instead. Resolving twice with the same context is idempotent.
func Resolve(template any, ctx Context) (any, error) {
	return resolve(template, ctx, false)
}

// ResolveStrict is Resolve with missing paths promoted to *UnresolvedError.
// Used for fields their owning step declares required: resolution must be
// total before the step executes, never partial.
func ResolveStrict(template any, ctx Context) (any, error) {
	return resolve(template, ctx, true)
}

// ResolveString renders a string template to its string form, regardless of
// the referenced values' types. Missing paths render as empty.
func ResolveString(template string, ctx Context) string {
	v, _ := resolve(template, ctx, false)
	return stringify(v)
}

func resolve(template any, ctx Context, strict bool) (any, error) {
	switch t := template.(type) {
	case string:
		return resolveStringLeaf(t, ctx, strict)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			rv, err := resolve(v, ctx, strict)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rv, err := resolve(v, ctx, strict)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		// Non-string scalars pass through untouched.
		return template, nil
	}
}

func resolveStringLeaf(s string, ctx Context, strict bool) (any, error) {
	if path, ok := exactPlaceholder(s); ok {
		v, found := Lookup(path, ctx)
		if !found {
			if strict {
				return nil, &UnresolvedError{Path: path}
			}
			return nil, nil
		}
		return v, nil
	}

	if !strings.Contains(s, "{{") {
		return s, nil
	}

	var firstMissing *UnresolvedError
	out := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		path := strings.TrimSpace(m[2 : len(m)-2])
		v, found := Lookup(path, ctx)
		if !found {
			if firstMissing == nil {
				firstMissing = &UnresolvedError{Path: path}
			}
			return ""
		}
		return stringify(v)
	})
	if strict && firstMissing != nil {
		return nil, firstMissing
	}
	return out, nil
}

// pathSegment is one step of a parsed path: a map key or an array index.
type pathSegment struct {
	key   string
	index int // -1 for key segments
}

func splitPath(path string) ([]pathSegment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty path")
	}

	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		part = strings.TrimSpace(part)
		for part != "" {
			open := strings.Index(part, "[")
			if open == -1 {
				segments = append(segments, pathSegment{key: part, index: -1})
				break
			}
			if open > 0 {
				segments = append(segments, pathSegment{key: part[:open], index: -1})
			}
			closing := strings.Index(part, "]")
			if closing <= open {
				return nil, fmt.Errorf("malformed index in path segment %q", part)
			}
			idx, err := strconv.Atoi(part[open+1 : closing])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid array index in path segment %q", part)
			}
			segments = append(segments, pathSegment{index: idx})
			part = part[closing+1:]
		}
	}
	return segments, nil
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Context:
		return m, true
	default:
		return nil, false
	}
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		// JSON numbers decode to float64; render integers without a
		// trailing .0 so ids and counts read naturally in prompts.
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
