package mcpbridge

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/donhauser/atlas-agent/docstore"
	"github.com/donhauser/atlas-agent/tools"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()

	store := docstore.NewMemoryStore()
	store.Seed(map[string][]docstore.Document{
		"clients": {
			{"_id": "c1", "name": "中信出版社"},
		},
	})

	registry := tools.NewRegistry()
	defs := []*tools.Definition{
		{
			ID:          "query_client",
			Name:        "查询客户",
			Description: "按名称查询客户信息",
			Module:      "crm",
			Parameters: []tools.Parameter{
				{Name: "name", Type: "string", Description: "客户名称", Required: true},
			},
			Execution: tools.Execution{
				Type:       tools.ExecSimple,
				Operation:  tools.OpFindOne,
				Collection: "clients",
				Query:      map[string]any{"name": "{{name}}"},
			},
			Permissions: []string{"clients"},
		},
		{
			ID:          "delete_client",
			Name:        "删除客户",
			Description: "删除一条客户记录",
			Module:      "crm",
			Execution: tools.Execution{
				Type:       tools.ExecSimple,
				Operation:  tools.OpDelete,
				Collection: "clients",
				Query:      map[string]any{"name": "{{name}}"},
			},
			RequiresConfirmation: true,
			Permissions:          []string{"clients"},
		},
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	return NewBridge(registry, tools.NewExecutor(registry, store, nil), nil)
}

func TestServerToolsExcludeConfirmationGated(t *testing.T) {
	b := newTestBridge(t)
	serverTools := b.ServerTools()

	if len(serverTools) != 1 {
		t.Fatalf("expected only the read-only tool, got %d", len(serverTools))
	}
	if serverTools[0].Tool.Name != "query_client" {
		t.Errorf("unexpected tool %q", serverTools[0].Tool.Name)
	}
}

func TestHandlerExecutesTool(t *testing.T) {
	b := newTestBridge(t)
	serverTools := b.ServerTools()

	req := mcp.CallToolRequest{}
	req.Params.Name = "query_client"
	req.Params.Arguments = map[string]any{"name": "中信出版社"}

	result, err := serverTools[0].Handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error result: %+v", result)
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	if !strings.Contains(text.Text, "中信出版社") {
		t.Errorf("expected client name in result, got %q", text.Text)
	}
}

func TestHandlerReportsToolFailure(t *testing.T) {
	b := newTestBridge(t)
	serverTools := b.ServerTools()

	req := mcp.CallToolRequest{}
	req.Params.Name = "query_client"
	req.Params.Arguments = map[string]any{}

	result, err := serverTools[0].Handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for missing params")
	}
}
