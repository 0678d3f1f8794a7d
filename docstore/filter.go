package docstore

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/donhauser/atlas-agent/binding"
)

// matchFilter reports whether doc satisfies a Mongo-style filter.
//
// Supported forms: field equality, dotted field paths, $or, $and, $in,
// $nin, $ne, $gt, $gte, $lt, $lte, $exists, and $regex with
// {"$options": "i"}.
func matchFilter(doc Document, filter map[string]any) (bool, error) {
	for key, cond := range filter {
		switch key {
		case "$or":
			ok, err := matchAny(doc, cond)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		case "$and":
			ok, err := matchAll(doc, cond)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("unsupported filter operator %q", key)
			}
			ok, err := matchField(doc, key, cond)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func matchAny(doc Document, cond any) (bool, error) {
	clauses, err := filterClauses(cond, "$or")
	if err != nil {
		return false, err
	}
	for _, clause := range clauses {
		ok, err := matchFilter(doc, clause)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchAll(doc Document, cond any) (bool, error) {
	clauses, err := filterClauses(cond, "$and")
	if err != nil {
		return false, err
	}
	for _, clause := range clauses {
		ok, err := matchFilter(doc, clause)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func filterClauses(cond any, op string) ([]map[string]any, error) {
	arr, ok := cond.([]any)
	if !ok {
		return nil, fmt.Errorf("%s requires an array of filters, got %T", op, cond)
	}
	clauses := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		clause, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s clause must be an object, got %T", op, item)
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func matchField(doc Document, path string, cond any) (bool, error) {
	value, exists := binding.Lookup(path, binding.Context(doc))

	ops, isOps := operatorSpec(cond)
	if !isOps {
		return exists && equalValues(value, cond), nil
	}

	// $regex and $options pair up inside one operator spec.
	if pattern, ok := ops["$regex"]; ok {
		return matchRegex(value, exists, pattern, ops["$options"])
	}

	for op, operand := range ops {
		switch op {
		case "$options":
			// consumed with $regex
		case "$exists":
			if truthy(operand) != exists {
				return false, nil
			}
		case "$eq":
			if !exists || !equalValues(value, operand) {
				return false, nil
			}
		case "$ne":
			if exists && equalValues(value, operand) {
				return false, nil
			}
		case "$in":
			if !exists || !valueIn(value, operand) {
				return false, nil
			}
		case "$nin":
			if exists && valueIn(value, operand) {
				return false, nil
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !exists {
				return false, nil
			}
			ok, err := compareValues(value, operand, op)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported filter operator %q", op)
		}
	}
	return true, nil
}

// operatorSpec reports whether cond is an operator object like
// {"$gt": 3}. A plain object without $-keys is an equality match.
func operatorSpec(cond any) (map[string]any, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchRegex(value any, exists bool, pattern, options any) (bool, error) {
	if !exists {
		return false, nil
	}
	s, ok := value.(string)
	if !ok {
		return false, nil
	}
	expr, ok := pattern.(string)
	if !ok {
		return false, fmt.Errorf("$regex requires a string pattern, got %T", pattern)
	}
	if opts, _ := options.(string); strings.Contains(opts, "i") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Errorf("invalid $regex %q: %w", expr, err)
	}
	return re.MatchString(s), nil
}

func valueIn(value, operand any) bool {
	arr, ok := operand.([]any)
	if !ok {
		return false
	}
	for _, item := range arr {
		if equalValues(value, item) {
			return true
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if an, aok := asNumber(a); aok {
		if bn, bok := asNumber(b); bok {
			return an == bn
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) && fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

func compareValues(a, b any, op string) (bool, error) {
	an, aok := asNumber(a)
	bn, bok := asNumber(b)
	var cmp int
	switch {
	case aok && bok:
		switch {
		case an < bn:
			cmp = -1
		case an > bn:
			cmp = 1
		}
	default:
		as, aIsStr := a.(string)
		bs, bIsStr := b.(string)
		if !aIsStr || !bIsStr {
			return false, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		cmp = strings.Compare(as, bs)
	}

	switch op {
	case "$gt":
		return cmp > 0, nil
	case "$gte":
		return cmp >= 0, nil
	case "$lt":
		return cmp < 0, nil
	case "$lte":
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("unknown comparison %q", op)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// sortDocuments orders docs in place by the sort spec. Ties keep their
// original order; multiple sort fields apply in lexical field order.
func sortDocuments(docs []Document, spec map[string]int) {
	if len(spec) == 0 {
		return
	}
	fields := make([]string, 0, len(spec))
	for f := range spec {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, aok := binding.Lookup(f, binding.Context(docs[i]))
			b, bok := binding.Lookup(f, binding.Context(docs[j]))
			if !aok && !bok {
				continue
			}
			if !aok {
				return spec[f] >= 0
			}
			if !bok {
				return spec[f] < 0
			}
			cmp := looseCompare(a, b)
			if cmp == 0 {
				continue
			}
			if spec[f] < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func looseCompare(a, b any) int {
	if an, aok := asNumber(a); aok {
		if bn, bok := asNumber(b); bok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}
