// Package docstore provides the document store the tool layer operates on.
//
// Documents are schemaless JSON objects grouped into named collections.
// Queries use a Mongo-style filter subset (see filter.go); aggregation
// supports a small pipeline subset (see aggregate.go). Two implementations
// exist: an in-memory store for tests and a SQLite-backed store for
// persistence.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Document is a schemaless record. The "_id" field holds the document id.
type Document = map[string]any

// ErrUnknownCollection is returned for operations against a collection the
// store has never seen.
var ErrUnknownCollection = errors.New("unknown collection")

// Query bundles the declarative read parameters of a find operation.
type Query struct {
	// Filter selects documents, Mongo filter-subset syntax.
	Filter map[string]any
	// Projection selects fields: {field: 1} includes, {field: 0} excludes.
	// Include and exclude must not be mixed. "_id" is always kept unless
	// explicitly excluded.
	Projection map[string]any
	// Sort orders results, {field: 1} ascending, {field: -1} descending.
	// Multiple fields apply in lexical field order.
	Sort map[string]int
	// Limit caps the result size. Zero means no limit.
	Limit int
}

// UpdateResult reports how many documents an update touched.
type UpdateResult struct {
	Matched  int `json:"matched"`
	Modified int `json:"modified"`
}

// CollectionInfo describes one collection for schema introspection.
type CollectionInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Store is the document store contract the tool executor depends on.
// Implementations are safe for concurrent use across sessions.
type Store interface {
	// Find returns the documents matching q, projected and sorted.
	Find(ctx context.Context, collection string, q Query) ([]Document, error)

	// FindOne returns the first matching document, or nil when none matches.
	FindOne(ctx context.Context, collection string, filter map[string]any) (Document, error)

	// Count returns the number of matching documents.
	Count(ctx context.Context, collection string, filter map[string]any) (int, error)

	// Aggregate runs a pipeline of stages against the collection.
	Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]Document, error)

	// Insert stores a document, assigning an "_id" when absent, and returns
	// the document id.
	Insert(ctx context.Context, collection string, doc Document) (string, error)

	// Update applies update (a {"$set": {...}} document, or a bare field map
	// treated as $set) to every document matching filter.
	Update(ctx context.Context, collection string, filter, update map[string]any) (UpdateResult, error)

	// Delete removes every matching document and returns how many.
	Delete(ctx context.Context, collection string, filter map[string]any) (int, error)

	// Collections lists known collections with document counts, most
	// populous first.
	Collections(ctx context.Context) ([]CollectionInfo, error)

	// Close releases underlying resources.
	Close() error
}

// setFields extracts the $set payload from an update document. A bare field
// map without operators is treated as a full $set for authoring convenience.
func setFields(update map[string]any) (map[string]any, error) {
	if raw, ok := update["$set"]; ok {
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("$set must be an object, got %T", raw)
		}
		return fields, nil
	}
	for k := range update {
		if len(k) > 0 && k[0] == '$' {
			return nil, fmt.Errorf("unsupported update operator %q", k)
		}
	}
	return update, nil
}

// applyProjection shapes a document according to a projection spec.
func applyProjection(doc Document, projection map[string]any) Document {
	if len(projection) == 0 {
		return doc
	}

	include := false
	for field, v := range projection {
		if field == "_id" {
			continue
		}
		if truthy(v) {
			include = true
		}
		break
	}

	out := make(Document)
	if include {
		for field, v := range projection {
			if !truthy(v) {
				continue
			}
			if val, ok := doc[field]; ok {
				out[field] = val
			}
		}
		if id, ok := doc["_id"]; ok {
			if v, set := projection["_id"]; !set || truthy(v) {
				out["_id"] = id
			}
		}
		return out
	}

	for k, v := range doc {
		if pv, set := projection[k]; set && !truthy(pv) {
			continue
		}
		out[k] = v
	}
	return out
}

// sortCollectionInfos orders by document count descending, name
// ascending on ties.
func sortCollectionInfos(infos []CollectionInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Count != infos[j].Count {
			return infos[i].Count > infos[j].Count
		}
		return infos[i].Name < infos[j].Name
	})
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case float64:
		return x != 0
	default:
		return v != nil
	}
}
