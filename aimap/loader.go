package aimap

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// mapFile is the authoring format: a YAML file holding one or more maps.
type mapFile struct {
	Maps []*Map `yaml:"maps"`
}

// LoadDirectory walks dir and registers every map found in .yaml/.yml
// files, in lexical file order so declaration order is deterministic.
func LoadDirectory(matcher *Matcher, dir string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loaded := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".yaml") && !strings.HasSuffix(d.Name(), ".yml") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		maps, err := parseMapFile(data, path)
		if err != nil {
			return err
		}
		for _, plan := range maps {
			if err := matcher.Register(plan); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			warnDuplicateOutputKeys(plan, logger)
			logger.Info("loaded map",
				"map", plan.ID,
				"module", plan.Module,
				"triggers", len(plan.Triggers),
				"enabled", plan.Enabled,
				"path", path)
			loaded++
		}
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("failed to walk map directory: %w", err)
	}
	return loaded, nil
}

func parseMapFile(data []byte, path string) ([]*Map, error) {
	var file mapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(file.Maps) == 0 {
		var plan Map
		if err := yaml.Unmarshal(data, &plan); err != nil || plan.ID == "" {
			return nil, fmt.Errorf("%s contains no maps", path)
		}
		return []*Map{&plan}, nil
	}
	return file.Maps, nil
}

// warnDuplicateOutputKeys flags steps writing the same outputKey. Last
// write wins at runtime; the warning keeps the overwrite visible to the
// plan author.
func warnDuplicateOutputKeys(plan *Map, logger *slog.Logger) {
	seen := make(map[string]bool)
	for _, step := range plan.Steps {
		if step.OutputKey == "" {
			continue
		}
		if seen[step.OutputKey] {
			logger.Warn("duplicate outputKey in map, last write wins",
				"map", plan.ID,
				"outputKey", step.OutputKey)
		}
		seen[step.OutputKey] = true
	}
}
