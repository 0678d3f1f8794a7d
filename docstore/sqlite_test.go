package docstore

import (
	"context"
	"testing"
)

func TestSqliteRoundTrip(t *testing.T) {
	s, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	id, err := s.Insert(ctx, "clients", Document{
		"name":     "中信出版社",
		"category": "出版",
		"rating":   float64(5),
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	doc, err := s.FindOne(ctx, "clients", map[string]any{"name": "中信出版社"})
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if doc == nil || doc["_id"] != id {
		t.Fatalf("expected document with id %s, got %v", id, doc)
	}
	if doc["rating"] != float64(5) {
		t.Errorf("rating lost in round trip: %v", doc["rating"])
	}
}

func TestSqliteUpdateAndDelete(t *testing.T) {
	s, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.Insert(ctx, "projects", Document{"name": name, "status": "open"}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	res, err := s.Update(ctx, "projects",
		map[string]any{"name": "a"},
		map[string]any{"$set": map[string]any{"status": "done"}})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if res.Matched != 1 || res.Modified != 1 {
		t.Errorf("expected 1/1, got %d/%d", res.Matched, res.Modified)
	}

	n, err := s.Delete(ctx, "projects", map[string]any{"status": "open"})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}

	count, err := s.Count(ctx, "projects", map[string]any{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 remaining, got %d", count)
	}
}

func TestSqliteSeedIdempotent(t *testing.T) {
	s, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	seed := map[string][]Document{
		"clients": {{"name": "one"}, {"name": "two"}},
	}
	if err := s.Seed(ctx, seed); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := s.Seed(ctx, seed); err != nil {
		t.Fatalf("second Seed failed: %v", err)
	}

	count, err := s.Count(ctx, "clients", map[string]any{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected seed to be idempotent, got %d documents", count)
	}
}

func TestSqliteCollections(t *testing.T) {
	s, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.Insert(ctx, "clients", Document{"name": "x"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := s.Insert(ctx, "quotations", Document{"total": float64(1)}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := s.Insert(ctx, "quotations", Document{"total": float64(2)}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	infos, err := s.Collections(ctx)
	if err != nil {
		t.Fatalf("Collections failed: %v", err)
	}
	// Most populous collection first.
	if len(infos) != 2 || infos[0].Name != "quotations" || infos[1].Name != "clients" {
		t.Errorf("unexpected collections: %+v", infos)
	}
}
