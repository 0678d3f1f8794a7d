package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadScopes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modules.yaml")
	content := `moduleScopes:
  crm:
    - crm
    - common
  finance:
    - finance
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	scopes, err := LoadScopes(path)
	if err != nil {
		t.Fatalf("LoadScopes failed: %v", err)
	}
	if !scopes.Allowed("crm", "common") {
		t.Error("crm should reach common maps")
	}
	if scopes.Allowed("finance", "crm") {
		t.Error("finance should not reach crm maps")
	}
}

func TestLoadScopesMissingFile(t *testing.T) {
	scopes, err := LoadScopes(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	// Unconfigured scopes fall back to own-module matching.
	if !scopes.Allowed("crm", "crm") {
		t.Error("own module must always be allowed")
	}
}

func TestLoadScopesInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.yaml")
	if err := os.WriteFile(path, []byte("moduleScopes: [not a map"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := LoadScopes(path); err == nil {
		t.Error("expected parse error")
	}
}
