package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/donhauser/atlas-agent/llm"
)

func TestGetOrCreateNewSession(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	s := m.GetOrCreate(ctx, "")
	if s.ID == "" {
		t.Fatal("expected generated session id")
	}
	if len(s.History) != 0 {
		t.Errorf("expected empty history, got %d messages", len(s.History))
	}

	again := m.GetOrCreate(ctx, s.ID)
	if again != s {
		t.Error("expected same session instance for same id")
	}
}

func TestAppendCapsHistory(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()
	s := m.GetOrCreate(ctx, "cap-test")

	for i := 0; i < historyLimit+5; i++ {
		m.Append(ctx, s, llm.UserMessage(fmt.Sprintf("message %d", i)))
	}

	if len(s.History) != historyLimit {
		t.Fatalf("expected history capped at %d, got %d", historyLimit, len(s.History))
	}
	if s.History[0].Content != "message 5" {
		t.Errorf("expected oldest messages dropped, first is %q", s.History[0].Content)
	}
	if s.History[len(s.History)-1].Content != fmt.Sprintf("message %d", historyLimit+4) {
		t.Errorf("unexpected last message %q", s.History[len(s.History)-1].Content)
	}
}

func TestHistoryPersistsAcrossManagers(t *testing.T) {
	store, err := NewStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	m1 := NewManager(store, nil)
	s := m1.GetOrCreate(ctx, "persist-test")
	m1.Append(ctx, s, llm.UserMessage("查一下中信出版社"))
	m1.Append(ctx, s, llm.AssistantMessage("已找到客户信息"))

	m2 := NewManager(store, nil)
	restored := m2.GetOrCreate(ctx, "persist-test")
	if len(restored.History) != 2 {
		t.Fatalf("expected 2 restored messages, got %d", len(restored.History))
	}
	if restored.History[0].Role != "user" || restored.History[0].Content != "查一下中信出版社" {
		t.Errorf("unexpected first message: %+v", restored.History[0])
	}
	if restored.History[1].Role != "assistant" {
		t.Errorf("unexpected second message role %q", restored.History[1].Role)
	}
}

func TestClearRemovesSessionAndHistory(t *testing.T) {
	store, err := NewStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	m := NewManager(store, nil)
	s := m.GetOrCreate(ctx, "clear-test")
	m.Append(ctx, s, llm.UserMessage("hello"))

	if err := m.Clear(ctx, "clear-test"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, ok := m.Get("clear-test"); ok {
		t.Error("expected session removed from manager")
	}

	history, err := store.Load(ctx, "clear-test")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty persisted history, got %d messages", len(history))
	}
}

func TestLoadUnknownSessionIsEmpty(t *testing.T) {
	store, err := NewStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	history, err := store.Load(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d", len(history))
	}
}
