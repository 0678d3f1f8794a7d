package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/donhauser/atlas-agent/aimap"
)

// scopesFile is the modules.yaml shape: for each caller module scope,
// the map modules it may match against.
type scopesFile struct {
	ModuleScopes map[string][]string `yaml:"moduleScopes"`
}

// LoadScopes reads the module scope allow-list. A missing file yields
// empty scopes, under which every module matches only its own maps.
func LoadScopes(path string) (aimap.Scopes, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return aimap.Scopes{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scopes file: %w", err)
	}

	var file scopesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse scopes file %s: %w", path, err)
	}
	return aimap.Scopes(file.ModuleScopes), nil
}
