package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/donhauser/atlas-agent/config"
	"github.com/donhauser/atlas-agent/docstore"
	"github.com/donhauser/atlas-agent/mcpbridge"
	"github.com/donhauser/atlas-agent/tools"
)

// mcpServerVersion is reported to MCP clients during initialization.
const mcpServerVersion = "1.0.0"

// ServeMCP exposes the read-only tools over MCP stdio. No collaborator
// is needed: MCP clients bring their own model, so this path skips the
// provider entirely and only wires the store and the registry.
func ServeMCP(opts Options) error {
	// Logs go to stderr; stdout carries the MCP protocol.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	settings, err := config.New(firstNonEmpty(opts.Provider, "openai"))
	if err != nil {
		return err
	}

	store, err := docstore.OpenSqlite(settings.Store.DataPath)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}

	registry := tools.NewRegistry()
	if _, err := tools.LoadDirectory(registry, settings.Authoring.ToolsDir, logger); err != nil {
		return fmt.Errorf("failed to load tools: %w", err)
	}
	executor := tools.NewExecutor(registry, store, logger)
	if err := tools.RegisterBuiltins(registry, executor); err != nil {
		return fmt.Errorf("failed to register builtin tools: %w", err)
	}

	bridge := mcpbridge.NewBridge(registry, executor, logger)
	return bridge.ServeStdio("atlas-agent", mcpServerVersion)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
