package jsonx

import "testing"

func TestExtractPureJSON(t *testing.T) {
	obj, err := ExtractObject(`{"name": "中信出版社"}`)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if obj["name"] != "中信出版社" {
		t.Errorf("unexpected name %v", obj["name"])
	}
}

func TestExtractFencedJSON(t *testing.T) {
	obj, err := ExtractObject("```json\n{\"rating\": 5}\n```")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if obj["rating"] != float64(5) {
		t.Errorf("unexpected rating %v", obj["rating"])
	}
}

func TestExtractEmbeddedJSON(t *testing.T) {
	obj, err := ExtractObject(`好的，参数如下：{"客户名称": "晨光文具"} 请确认。`)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if obj["客户名称"] != "晨光文具" {
		t.Errorf("unexpected value %v", obj["客户名称"])
	}
}

func TestExtractNoJSON(t *testing.T) {
	if _, err := ExtractObject("没有找到任何参数"); err == nil {
		t.Fatal("expected error for reply without JSON")
	}
}
