package docstore

import (
	"fmt"
	"strings"

	"github.com/donhauser/atlas-agent/binding"
)

// runPipeline applies an aggregation pipeline to docs. Supported
// stages: $match, $group (with $sum, $min, $max, $first accumulators),
// $sort, $limit, $project.
func runPipeline(docs []Document, pipeline []map[string]any) ([]Document, error) {
	out := docs
	for i, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("pipeline stage %d must have exactly one operator", i)
		}
		var err error
		for op, spec := range stage {
			switch op {
			case "$match":
				out, err = stageMatch(out, spec)
			case "$group":
				out, err = stageGroup(out, spec)
			case "$sort":
				out, err = stageSort(out, spec)
			case "$limit":
				out, err = stageLimit(out, spec)
			case "$project":
				out, err = stageProject(out, spec)
			default:
				err = fmt.Errorf("unsupported pipeline stage %q", op)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("pipeline stage %d: %w", i, err)
		}
	}
	return out, nil
}

func stageMatch(docs []Document, spec any) ([]Document, error) {
	filter, ok := spec.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("$match requires an object, got %T", spec)
	}
	var out []Document
	for _, doc := range docs {
		match, err := matchFilter(doc, filter)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, doc)
		}
	}
	return out, nil
}

func stageGroup(docs []Document, spec any) ([]Document, error) {
	groupSpec, ok := spec.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("$group requires an object, got %T", spec)
	}
	idExpr, ok := groupSpec["_id"]
	if !ok {
		return nil, fmt.Errorf("$group requires an _id expression")
	}

	type bucket struct {
		id   any
		docs []Document
	}
	buckets := make(map[string]*bucket)
	var order []string

	for _, doc := range docs {
		id := evalGroupExpr(idExpr, doc)
		key := fmt.Sprintf("%v", id)
		b, seen := buckets[key]
		if !seen {
			b = &bucket{id: id}
			buckets[key] = b
			order = append(order, key)
		}
		b.docs = append(b.docs, doc)
	}

	out := make([]Document, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		result := Document{"_id": b.id}
		for field, accSpec := range groupSpec {
			if field == "_id" {
				continue
			}
			value, err := applyAccumulator(accSpec, b.docs)
			if err != nil {
				return nil, fmt.Errorf("accumulator for %q: %w", field, err)
			}
			result[field] = value
		}
		out = append(out, result)
	}
	return out, nil
}

// evalGroupExpr resolves a $group expression against a document.
// "$field" references a document field; anything else is a constant.
func evalGroupExpr(expr any, doc Document) any {
	ref, ok := expr.(string)
	if !ok || !strings.HasPrefix(ref, "$") {
		return expr
	}
	value, found := binding.Lookup(strings.TrimPrefix(ref, "$"), binding.Context(doc))
	if !found {
		return nil
	}
	return value
}

func applyAccumulator(spec any, docs []Document) (any, error) {
	accSpec, ok := spec.(map[string]any)
	if !ok || len(accSpec) != 1 {
		return nil, fmt.Errorf("accumulator must be a single-operator object, got %T", spec)
	}
	for op, operand := range accSpec {
		switch op {
		case "$sum":
			var total float64
			for _, doc := range docs {
				if n, ok := asNumber(evalGroupExpr(operand, doc)); ok {
					total += n
				}
			}
			return total, nil
		case "$min", "$max":
			var best any
			for _, doc := range docs {
				v := evalGroupExpr(operand, doc)
				if v == nil {
					continue
				}
				if best == nil {
					best = v
					continue
				}
				cmp := looseCompare(v, best)
				if (op == "$min" && cmp < 0) || (op == "$max" && cmp > 0) {
					best = v
				}
			}
			return best, nil
		case "$first":
			if len(docs) == 0 {
				return nil, nil
			}
			return evalGroupExpr(operand, docs[0]), nil
		default:
			return nil, fmt.Errorf("unsupported accumulator %q", op)
		}
	}
	return nil, nil
}

func stageSort(docs []Document, spec any) ([]Document, error) {
	sortSpec, ok := spec.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("$sort requires an object, got %T", spec)
	}
	normalized := make(map[string]int, len(sortSpec))
	for field, dir := range sortSpec {
		n, ok := asNumber(dir)
		if !ok {
			return nil, fmt.Errorf("$sort direction for %q must be 1 or -1", field)
		}
		if n < 0 {
			normalized[field] = -1
		} else {
			normalized[field] = 1
		}
	}
	out := make([]Document, len(docs))
	copy(out, docs)
	sortDocuments(out, normalized)
	return out, nil
}

func stageLimit(docs []Document, spec any) ([]Document, error) {
	n, ok := asNumber(spec)
	if !ok || n < 0 {
		return nil, fmt.Errorf("$limit requires a non-negative number, got %v", spec)
	}
	limit := int(n)
	if limit >= len(docs) {
		return docs, nil
	}
	return docs[:limit], nil
}

func stageProject(docs []Document, spec any) ([]Document, error) {
	projection, ok := spec.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("$project requires an object, got %T", spec)
	}
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, applyProjection(doc, projection))
	}
	return out, nil
}
