package llm

import (
	"context"
	"encoding/json"
	"testing"
)

func TestScriptedProviderReplaysInOrder(t *testing.T) {
	p := NewScriptedProvider(
		Response{Content: "first"},
		Response{Content: "second"},
	)
	ctx := context.Background()

	resp, err := p.Chat(ctx, []ChatMessage{UserMessage("hi")})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "first" {
		t.Errorf("expected first, got %q", resp.Content)
	}

	resp, err = p.Chat(ctx, []ChatMessage{UserMessage("again")})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "second" {
		t.Errorf("expected second, got %q", resp.Content)
	}

	if _, err := p.Chat(ctx, nil); err == nil {
		t.Error("exhausted script should error")
	}
	if len(p.Calls) != 3 {
		t.Errorf("expected 3 recorded calls, got %d", len(p.Calls))
	}
}

func TestScriptedProviderToolCalls(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"name": "中信出版社"})
	p := NewScriptedProvider(Response{
		ToolCalls: []ToolCall{{ID: "call-1", Name: "query_client", Arguments: args}},
	})

	resp, err := p.ChatWithTools(context.Background(),
		[]ChatMessage{UserMessage("查一下")},
		[]ToolDefinition{{Name: "query_client"}})
	if err != nil {
		t.Fatalf("ChatWithTools failed: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "query_client" {
		t.Errorf("unexpected tool calls: %+v", resp.ToolCalls)
	}
}

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewProvider("mystery", Options{APIKey: "key"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewProviderDefaults(t *testing.T) {
	p, err := NewProvider("deepseek", Options{APIKey: "key"})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if p.Name() != "deepseek" {
		t.Errorf("expected deepseek, got %s", p.Name())
	}
	if p.Model() != DefaultDeepSeekModel {
		t.Errorf("expected default model, got %s", p.Model())
	}
}

func TestMessageConstructors(t *testing.T) {
	if m := SystemMessage("s"); m.Role != "system" || m.Content != "s" {
		t.Errorf("unexpected system message: %+v", m)
	}
	if m := ToolResultMessage("id-1", "out"); m.Role != "tool" || m.ToolCallID != "id-1" {
		t.Errorf("unexpected tool message: %+v", m)
	}
}
