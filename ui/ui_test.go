package ui

import (
	"encoding/json"
	"testing"
)

func TestSpecValidate(t *testing.T) {
	spec := &Spec{
		Component: ComponentDetailsView,
		Props: DetailsProps{
			Title:  "客户详情",
			Fields: []DetailField{{Label: "名称", Value: "中信出版社"}},
		},
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
}

func TestSpecValidateMismatchedProps(t *testing.T) {
	spec := &Spec{
		Component: ComponentListView,
		Props:     DetailsProps{Title: "x"},
	}
	if err := spec.Validate(); err == nil {
		t.Fatal("expected error for mismatched props variant")
	}
}

func TestSpecValidateUnknownComponent(t *testing.T) {
	spec := &Spec{Component: "markdown_panel", Props: DetailsProps{}}
	if err := spec.Validate(); err == nil {
		t.Fatal("expected error for unknown componentId")
	}
}

func TestBridgeEmitDropsInvalid(t *testing.T) {
	b := NewBridge(nil)
	out := b.Emit(&Spec{Component: "chart", Props: ListProps{}})
	if out != nil {
		t.Fatal("invalid spec should be dropped")
	}
	if b.Emit(nil) != nil {
		t.Fatal("nil spec should pass through as nil")
	}
	valid := &Spec{Component: ComponentListView, Props: ListProps{Title: "客户"}}
	if b.Emit(valid) != valid {
		t.Fatal("valid spec should pass through")
	}
}

func TestSpecUnmarshalByComponent(t *testing.T) {
	data := []byte(`{
		"componentId": "form_projection",
		"target": "canvas",
		"props": {
			"title": "新建客户",
			"fields": [{"name": "name", "label": "客户名称", "type": "text", "required": true}],
			"submitTool": "create_client"
		}
	}`)
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	props, ok := spec.Props.(FormProps)
	if !ok {
		t.Fatalf("expected FormProps, got %T", spec.Props)
	}
	if props.SubmitTool != "create_client" || len(props.Fields) != 1 {
		t.Errorf("unexpected props: %+v", props)
	}
	if spec.Target != "canvas" {
		t.Errorf("unexpected target: %q", spec.Target)
	}
}

func TestSpecUnmarshalRejectsUnknown(t *testing.T) {
	data := []byte(`{"componentId": "iframe", "props": {}}`)
	var spec Spec
	if err := json.Unmarshal(data, &spec); err == nil {
		t.Fatal("expected error for unknown componentId")
	}
}

func TestSpecRoundTrip(t *testing.T) {
	orig := Spec{
		Component: ComponentListView,
		Props: ListProps{
			Title: "查询结果",
			Items: []ListItem{{ID: "c1", Title: "中信出版社", Subtitle: "出版"}},
		},
	}
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded Spec
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	props, ok := decoded.Props.(ListProps)
	if !ok {
		t.Fatalf("expected ListProps, got %T", decoded.Props)
	}
	if props.Items[0].Title != "中信出版社" {
		t.Errorf("item lost in round trip: %+v", props.Items)
	}
}

func TestEventValidate(t *testing.T) {
	for _, typ := range []EventType{EventSubmit, EventCancel, EventSelect, EventApprove, EventReject, EventUpdate} {
		e := Event{Type: typ}
		if err := e.Validate(); err != nil {
			t.Errorf("valid event type %q rejected: %v", typ, err)
		}
	}
	bad := Event{Type: "drag"}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestEventRequestID(t *testing.T) {
	e := Event{Type: EventApprove, Payload: map[string]any{"requestId": "req-1"}}
	if e.RequestID() != "req-1" {
		t.Errorf("unexpected requestId: %q", e.RequestID())
	}
	empty := Event{Type: EventApprove}
	if empty.RequestID() != "" {
		t.Error("expected empty requestId for missing payload")
	}
}
