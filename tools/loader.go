package tools

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// toolFile is the authoring format: a YAML file holding one or more
// tool definitions.
type toolFile struct {
	Tools []*Definition `yaml:"tools"`
}

// LoadDirectory walks dir and registers every tool definition found in
// .yaml/.yml files. Files are visited in lexical order, so registration
// order is deterministic.
func LoadDirectory(registry *Registry, dir string, logger *slog.Logger) (int, error) {
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
		defs, err := parseToolFile(data, path)
		if err != nil {
			return err
		}
		for _, def := range defs {
			if err := registry.Register(def); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			warnDuplicateOutputKeys(def, logger)
			logger.Info("loaded tool",
				"tool", def.ID,
				"module", def.Module,
				"execution", def.Execution.Type,
				"path", path)
			loaded++
		}
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("failed to walk tool directory: %w", err)
	}
	return loaded, nil
}

func parseToolFile(data []byte, path string) ([]*Definition, error) {
	var file toolFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(file.Tools) == 0 {
		// Allow a single bare definition per file as well.
		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil || def.ID == "" {
			return nil, fmt.Errorf("%s contains no tool definitions", path)
		}
		return []*Definition{&def}, nil
	}
	return file.Tools, nil
}

// warnDuplicateOutputKeys flags pipeline steps writing the same
// outputKey. Last write wins at runtime; the warning surfaces what
// would otherwise be a silent overwrite in an authored pipeline.
func warnDuplicateOutputKeys(def *Definition, logger *slog.Logger) {
	if def.Execution.Type != ExecPipeline {
		return
	}
	seen := make(map[string]bool)
	for _, step := range def.Execution.Steps {
		if step.OutputKey == "" {
			continue
		}
		if seen[step.OutputKey] {
			logger.Warn("duplicate outputKey in pipeline, last write wins",
				"tool", def.ID,
				"outputKey", step.OutputKey)
		}
		seen[step.OutputKey] = true
	}
}
