package docstore

import (
	"context"
	"testing"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	s.Seed(map[string][]Document{
		"clients": {
			{"_id": "c1", "name": "中信出版社", "category": "出版", "rating": float64(5), "status": "active"},
			{"_id": "c2", "name": "人民邮电出版社", "category": "出版", "rating": float64(4), "status": "active"},
			{"_id": "c3", "name": "晨光文具", "category": "文具", "rating": float64(3), "status": "archived"},
		},
		"quotations": {
			{"_id": "q1", "clientId": "c1", "total": float64(12000), "status": "confirmed"},
			{"_id": "q2", "clientId": "c1", "total": float64(8000), "status": "draft"},
			{"_id": "q3", "clientId": "c3", "total": float64(3000), "status": "confirmed"},
		},
	})
	return s
}

func TestFindEquality(t *testing.T) {
	s := seededStore(t)
	docs, err := s.Find(context.Background(), "clients", Query{
		Filter: map[string]any{"name": "中信出版社"},
	})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0]["_id"] != "c1" {
		t.Errorf("expected c1, got %v", docs[0]["_id"])
	}
}

func TestFindRegexCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	s.Seed(map[string][]Document{
		"clients": {
			{"name": "Acme Publishing"},
			{"name": "acme tools"},
			{"name": "Other"},
		},
	})
	docs, err := s.Find(context.Background(), "clients", Query{
		Filter: map[string]any{"name": map[string]any{"$regex": "acme", "$options": "i"}},
	})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 documents, got %d", len(docs))
	}
}

func TestFindOperators(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter map[string]any
		want   int
	}{
		{"gt", map[string]any{"rating": map[string]any{"$gt": float64(3)}}, 2},
		{"gte", map[string]any{"rating": map[string]any{"$gte": float64(3)}}, 3},
		{"lt", map[string]any{"rating": map[string]any{"$lt": float64(4)}}, 1},
		{"ne", map[string]any{"status": map[string]any{"$ne": "archived"}}, 2},
		{"in", map[string]any{"category": map[string]any{"$in": []any{"出版"}}}, 2},
		{"exists missing", map[string]any{"address": map[string]any{"$exists": true}}, 0},
		{"exists absent check", map[string]any{"address": map[string]any{"$exists": false}}, 3},
		{"or", map[string]any{"$or": []any{
			map[string]any{"name": "晨光文具"},
			map[string]any{"rating": float64(5)},
		}}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.Count(ctx, "clients", tt.filter)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != tt.want {
				t.Errorf("expected %d matches, got %d", tt.want, n)
			}
		})
	}
}

func TestFindUnsupportedOperator(t *testing.T) {
	s := seededStore(t)
	_, err := s.Find(context.Background(), "clients", Query{
		Filter: map[string]any{"rating": map[string]any{"$mod": []any{2, 0}}},
	})
	if err == nil {
		t.Fatal("expected error for unsupported operator")
	}
}

func TestFindSortAndLimit(t *testing.T) {
	s := seededStore(t)
	docs, err := s.Find(context.Background(), "clients", Query{
		Sort:  map[string]int{"rating": -1},
		Limit: 2,
	})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0]["_id"] != "c1" || docs[1]["_id"] != "c2" {
		t.Errorf("unexpected order: %v, %v", docs[0]["_id"], docs[1]["_id"])
	}
}

func TestFindProjection(t *testing.T) {
	s := seededStore(t)
	docs, err := s.Find(context.Background(), "clients", Query{
		Filter:     map[string]any{"_id": "c1"},
		Projection: map[string]any{"name": 1, "rating": 1},
	})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	doc := docs[0]
	if doc["name"] != "中信出版社" || doc["rating"] != float64(5) {
		t.Errorf("projected fields missing: %v", doc)
	}
	if _, ok := doc["category"]; ok {
		t.Error("category should have been projected away")
	}
	if doc["_id"] != "c1" {
		t.Error("_id should be kept by default")
	}
}

func TestFindOneMissing(t *testing.T) {
	s := seededStore(t)
	doc, err := s.FindOne(context.Background(), "clients", map[string]any{"name": "不存在"})
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil for missing document, got %v", doc)
	}
}

func TestUnknownCollection(t *testing.T) {
	s := seededStore(t)
	_, err := s.Find(context.Background(), "nonexistent", Query{})
	if err == nil {
		t.Fatal("expected error for unknown collection")
	}
}

func TestInsertAssignsID(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	id, err := s.Insert(ctx, "clients", Document{"name": "新客户"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected assigned id")
	}
	doc, err := s.FindOne(ctx, "clients", map[string]any{"_id": id})
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if doc == nil || doc["name"] != "新客户" {
		t.Errorf("inserted document not retrievable: %v", doc)
	}
}

func TestUpdateSet(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	res, err := s.Update(ctx, "clients",
		map[string]any{"category": "出版"},
		map[string]any{"$set": map[string]any{"status": "archived"}})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if res.Matched != 2 || res.Modified != 2 {
		t.Errorf("expected 2/2, got %d/%d", res.Matched, res.Modified)
	}

	// Same update again matches but modifies nothing.
	res, err = s.Update(ctx, "clients",
		map[string]any{"category": "出版"},
		map[string]any{"status": "archived"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if res.Matched != 2 || res.Modified != 0 {
		t.Errorf("expected 2/0, got %d/%d", res.Matched, res.Modified)
	}
}

func TestUpdateRejectsUnknownOperator(t *testing.T) {
	s := seededStore(t)
	_, err := s.Update(context.Background(), "clients",
		map[string]any{"_id": "c1"},
		map[string]any{"$inc": map[string]any{"rating": 1}})
	if err == nil {
		t.Fatal("expected error for unsupported update operator")
	}
}

func TestDelete(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	n, err := s.Delete(ctx, "clients", map[string]any{"status": "archived"})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
	count, err := s.Count(ctx, "clients", map[string]any{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 remaining, got %d", count)
	}
}

func TestAggregateGroupSum(t *testing.T) {
	s := seededStore(t)
	results, err := s.Aggregate(context.Background(), "quotations", []map[string]any{
		{"$match": map[string]any{"status": "confirmed"}},
		{"$group": map[string]any{
			"_id":   "$clientId",
			"total": map[string]any{"$sum": "$total"},
		}},
		{"$sort": map[string]any{"total": float64(-1)}},
	})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(results))
	}
	if results[0]["_id"] != "c1" || results[0]["total"] != float64(12000) {
		t.Errorf("unexpected first group: %v", results[0])
	}
	if results[1]["_id"] != "c3" || results[1]["total"] != float64(3000) {
		t.Errorf("unexpected second group: %v", results[1])
	}
}

func TestAggregateLimitAndProject(t *testing.T) {
	s := seededStore(t)
	results, err := s.Aggregate(context.Background(), "quotations", []map[string]any{
		{"$sort": map[string]any{"total": float64(1)}},
		{"$limit": float64(2)},
		{"$project": map[string]any{"total": 1}},
	})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(results))
	}
	if results[0]["total"] != float64(3000) {
		t.Errorf("unexpected first total: %v", results[0]["total"])
	}
	if _, ok := results[0]["status"]; ok {
		t.Error("status should have been projected away")
	}
}

func TestCollections(t *testing.T) {
	s := seededStore(t)
	infos, err := s.Collections(context.Background())
	if err != nil {
		t.Fatalf("Collections failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(infos))
	}
	// Equal counts fall back to name order.
	if infos[0].Name != "clients" || infos[0].Count != 3 {
		t.Errorf("unexpected first collection: %+v", infos[0])
	}
}

func TestCollectionsOrderedByCount(t *testing.T) {
	s := NewMemoryStore()
	s.Seed(map[string][]Document{
		"contracts": {
			{"_id": "k1"},
		},
		"quotations": {
			{"_id": "q1"}, {"_id": "q2"}, {"_id": "q3"},
		},
		"clients": {
			{"_id": "c1"}, {"_id": "c2"},
		},
	})
	infos, err := s.Collections(context.Background())
	if err != nil {
		t.Fatalf("Collections failed: %v", err)
	}
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	want := []string{"quotations", "clients", "contracts"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("expected count-descending order %v, got %v", want, names)
		}
	}
}

func TestFindDoesNotAliasStoredDocuments(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	docs, err := s.Find(ctx, "clients", Query{Filter: map[string]any{"_id": "c1"}})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	docs[0]["name"] = "mutated"

	doc, err := s.FindOne(ctx, "clients", map[string]any{"_id": "c1"})
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if doc["name"] != "中信出版社" {
		t.Errorf("stored document was mutated through a returned copy: %v", doc["name"])
	}
}
