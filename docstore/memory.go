package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store. It backs tests and the seed-data
// demo mode; nothing survives a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Document)}
}

// Seed loads initial collections, replacing any existing content.
func (s *MemoryStore) Seed(data map[string][]Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, docs := range data {
		stored := make([]Document, 0, len(docs))
		for _, doc := range docs {
			d := cloneDocument(doc)
			if _, ok := d["_id"]; !ok {
				d["_id"] = uuid.NewString()
			}
			stored = append(stored, d)
		}
		s.collections[name] = stored
	}
}

func (s *MemoryStore) Find(_ context.Context, collection string, q Query) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	var matched []Document
	for _, doc := range docs {
		match, err := matchFilter(doc, q.Filter)
		if err != nil {
			return nil, err
		}
		if match {
			matched = append(matched, cloneDocument(doc))
		}
	}

	sortDocuments(matched, q.Sort)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	if len(q.Projection) > 0 {
		for i, doc := range matched {
			matched[i] = applyProjection(doc, q.Projection)
		}
	}
	return matched, nil
}

func (s *MemoryStore) FindOne(ctx context.Context, collection string, filter map[string]any) (Document, error) {
	docs, err := s.Find(ctx, collection, Query{Filter: filter, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (s *MemoryStore) Count(_ context.Context, collection string, filter map[string]any) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	count := 0
	for _, doc := range docs {
		match, err := matchFilter(doc, filter)
		if err != nil {
			return 0, err
		}
		if match {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Aggregate(_ context.Context, collection string, pipeline []map[string]any) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	input := make([]Document, len(docs))
	for i, doc := range docs {
		input[i] = cloneDocument(doc)
	}
	return runPipeline(input, pipeline)
}

func (s *MemoryStore) Insert(_ context.Context, collection string, doc Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := cloneDocument(doc)
	id, ok := d["_id"].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		d["_id"] = id
	}
	s.collections[collection] = append(s.collections[collection], d)
	return id, nil
}

func (s *MemoryStore) Update(_ context.Context, collection string, filter, update map[string]any) (UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		return UpdateResult{}, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	fields, err := setFields(update)
	if err != nil {
		return UpdateResult{}, err
	}

	var result UpdateResult
	for _, doc := range docs {
		match, err := matchFilter(doc, filter)
		if err != nil {
			return UpdateResult{}, err
		}
		if !match {
			continue
		}
		result.Matched++
		changed := false
		for k, v := range fields {
			if !equalValues(doc[k], v) {
				doc[k] = v
				changed = true
			}
		}
		if changed {
			result.Modified++
		}
	}
	return result, nil
}

func (s *MemoryStore) Delete(_ context.Context, collection string, filter map[string]any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	kept := docs[:0]
	deleted := 0
	for _, doc := range docs {
		match, err := matchFilter(doc, filter)
		if err != nil {
			return 0, err
		}
		if match {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	s.collections[collection] = kept
	return deleted, nil
}

func (s *MemoryStore) Collections(_ context.Context) ([]CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]CollectionInfo, 0, len(s.collections))
	for name, docs := range s.collections {
		infos = append(infos, CollectionInfo{Name: name, Count: len(docs)})
	}
	sortCollectionInfos(infos)
	return infos, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneDocument(x)
	case []any:
		arr := make([]any, len(x))
		for i, item := range x {
			arr[i] = cloneValue(item)
		}
		return arr
	default:
		return v
	}
}
