package orchestrator

import (
	"context"
	"testing"

	"github.com/donhauser/atlas-agent/aimap"
	"github.com/donhauser/atlas-agent/binding"
	"github.com/donhauser/atlas-agent/docstore"
	"github.com/donhauser/atlas-agent/tools"
)

func fixture(t *testing.T) (*Orchestrator, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	store.Seed(map[string][]docstore.Document{
		"clients": {
			{"_id": "c1", "name": "中信出版社", "category": "出版", "rating": float64(5)},
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
				{Name: "name", Type: "string", Required: true},
			},
			Execution: tools.Execution{
				Type:       tools.ExecSimple,
				Operation:  tools.OpFindOne,
				Collection: "clients",
				Query:      map[string]any{"name": "{{name}}"},
			},
		},
		{
			ID:          "create_client",
			Name:        "新建客户",
			Description: "创建一条客户记录",
			Module:      "crm",
			Parameters: []tools.Parameter{
				{Name: "name", Type: "string", Required: true},
			},
			Execution: tools.Execution{
				Type:       tools.ExecSimple,
				Operation:  tools.OpInsert,
				Collection: "clients",
				Document:   map[string]any{"name": "{{name}}", "status": "active"},
			},
			RequiresConfirmation: true,
		},
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	executor := tools.NewExecutor(registry, store, nil)
	return New(executor, registry, nil), store
}

func queryPlan() *aimap.Map {
	return &aimap.Map{
		ID:       "query_client",
		Name:     "查询客户",
		Triggers: []string{"查一下"},
		Module:   "crm",
		Priority: 10,
		Enabled:  true,
		Steps: []aimap.Step{
			{
				Order:          1,
				Name:           "查询",
				Action:         "按名称查询客户",
				ToolID:         "query_client",
				ParamsTemplate: map[string]any{"name": "{{用户提供的客户名称}}"},
				OutputKey:      "client",
				NextStepPrompt: "将 {{用户提供的客户名称}} 的信息展示给用户",
			},
		},
	}
}

func createPlan() *aimap.Map {
	return &aimap.Map{
		ID:       "create_client",
		Name:     "新建客户",
		Triggers: []string{"新建客户"},
		Module:   "crm",
		Priority: 5,
		Enabled:  true,
		Steps: []aimap.Step{
			{
				Order:          1,
				Name:           "查重",
				Action:         "检查客户是否已存在",
				ToolID:         "query_client",
				ParamsTemplate: map[string]any{"name": "{{用户提供的客户名称}}"},
				OutputKey:      "existing",
			},
			{
				Order:  2,
				Name:   "创建",
				Action: "创建客户记录",
				ToolID: "create_client",
				Condition: &aimap.Condition{
					Describe: "客户不存在时",
					When:     "existing.data == nil",
				},
				ParamsTemplate: map[string]any{"name": "{{用户提供的客户名称}}"},
				OutputKey:      "created",
				NextStepPrompt: "告知用户客户已创建",
			},
		},
	}
}

// The single query step resolves its Chinese-keyed binding and completes.
func TestRunQueryPlan(t *testing.T) {
	o, _ := fixture(t)
	run := o.Start(context.Background(), queryPlan(),
		binding.Context{"用户提供的客户名称": "中信出版社"})

	if run.State != StateCompleted {
		t.Fatalf("expected completed, got %s (failure: %v)", run.State, run.Failure)
	}
	client, ok := run.Context["client"].(map[string]any)
	if !ok {
		t.Fatalf("expected client output, got %T", run.Context["client"])
	}
	doc := client["data"].(docstore.Document)
	if doc["category"] != "出版" {
		t.Errorf("unexpected client: %v", doc)
	}
	if len(run.Guidance) != 1 || run.Guidance[0] != "将 中信出版社 的信息展示给用户" {
		t.Errorf("unexpected guidance: %v", run.Guidance)
	}
}

func TestRunFailsOnUnresolvedBinding(t *testing.T) {
	o, _ := fixture(t)
	run := o.Start(context.Background(), queryPlan(), binding.Context{})

	if run.State != StateFailed {
		t.Fatalf("expected failed, got %s", run.State)
	}
	if run.Failure.Code != tools.ErrUnresolvedBinding {
		t.Errorf("expected UnresolvedBinding, got %s", run.Failure.Code)
	}
}

// Existing client makes the conditioned create step a no-op; the plan
// completes without suspending.
func TestConditionSkipsCreateForExistingClient(t *testing.T) {
	o, store := fixture(t)
	run := o.Start(context.Background(), createPlan(),
		binding.Context{"用户提供的客户名称": "中信出版社"})

	if run.State != StateCompleted {
		t.Fatalf("expected completed, got %s (failure: %v)", run.State, run.Failure)
	}
	if _, wrote := run.Context["created"]; wrote {
		t.Error("create step should have been skipped")
	}
	n, err := store.Count(context.Background(), "clients", map[string]any{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("no new client should exist, got %d", n)
	}
}

func TestConfirmationGateApprove(t *testing.T) {
	o, store := fixture(t)
	ctx := context.Background()
	run := o.Start(ctx, createPlan(), binding.Context{"用户提供的客户名称": "晨光文具"})

	if run.State != StateAwaitingConfirmation {
		t.Fatalf("expected awaiting_confirmation, got %s", run.State)
	}
	if run.Pending == nil || run.Pending.ToolID != "create_client" {
		t.Fatalf("expected pending create_client call, got %+v", run.Pending)
	}
	requestID := run.Pending.RequestID

	// Nothing has been written while suspended.
	n, _ := store.Count(ctx, "clients", map[string]any{"name": "晨光文具"})
	if n != 0 {
		t.Fatal("no mutation may happen before approval")
	}

	result, err := o.Confirm(ctx, run, requestID)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if !result.Success() {
		t.Fatalf("confirmed call failed: %v", result.Error)
	}
	if run.State != StateCompleted {
		t.Fatalf("expected completed after approval, got %s", run.State)
	}

	n, _ = store.Count(ctx, "clients", map[string]any{"name": "晨光文具"})
	if n != 1 {
		t.Fatalf("expected exactly one inserted client, got %d", n)
	}

	// Retrying the confirm with the same requestId replays the recorded
	// result without executing again.
	replay, err := o.Confirm(ctx, run, requestID)
	if err != nil {
		t.Fatalf("replayed Confirm failed: %v", err)
	}
	if replay != result {
		t.Error("replay should return the recorded result")
	}
	n, _ = store.Count(ctx, "clients", map[string]any{"name": "晨光文具"})
	if n != 1 {
		t.Errorf("double execution detected, %d clients", n)
	}
}

func TestConfirmationGateReject(t *testing.T) {
	o, store := fixture(t)
	ctx := context.Background()
	run := o.Start(ctx, createPlan(), binding.Context{"用户提供的客户名称": "晨光文具"})

	if run.State != StateAwaitingConfirmation {
		t.Fatalf("expected awaiting_confirmation, got %s", run.State)
	}
	requestID := run.Pending.RequestID

	if err := o.Reject(run, requestID); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if run.State != StateFailed {
		t.Fatalf("rejection must be terminal, got %s", run.State)
	}
	if run.Failure.Code != tools.ErrConfirmationRejected {
		t.Errorf("expected ConfirmationRejected, got %s", run.Failure.Code)
	}

	n, _ := store.Count(ctx, "clients", map[string]any{"name": "晨光文具"})
	if n != 0 {
		t.Error("rejected call must not mutate the store")
	}

	// A rejected plan cannot be revived by a late confirm.
	if _, err := o.Confirm(ctx, run, requestID); err == nil {
		t.Error("confirm after rejection should fail")
	}
}

func TestConfirmWrongRequestID(t *testing.T) {
	o, _ := fixture(t)
	ctx := context.Background()
	run := o.Start(ctx, createPlan(), binding.Context{"用户提供的客户名称": "晨光文具"})

	if _, err := o.Confirm(ctx, run, "bogus"); err == nil {
		t.Error("confirm with a foreign requestId should fail")
	}
	if run.State != StateAwaitingConfirmation {
		t.Errorf("run should still be suspended, got %s", run.State)
	}
}

func TestPurePromptStep(t *testing.T) {
	o, _ := fixture(t)
	plan := &aimap.Map{
		ID:       "advice",
		Name:     "经营建议",
		Triggers: []string{"建议"},
		Module:   "crm",
		Priority: 1,
		Enabled:  true,
		Steps: []aimap.Step{
			{Order: 1, Name: "分析", Action: "给出建议", NextStepPrompt: "根据客户情况给出经营建议"},
		},
	}
	run := o.Start(context.Background(), plan, binding.Context{})
	if run.State != StateCompleted {
		t.Fatalf("expected completed, got %s", run.State)
	}
	if len(run.Guidance) != 1 {
		t.Errorf("expected guidance from pure-prompt step, got %v", run.Guidance)
	}
}
