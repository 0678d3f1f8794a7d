// Package cli wires the application together for the command-line
// entry point: load settings and authoring files, build the agent, and
// run the serve/chat/tools/maps commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/donhauser/atlas-agent/agent"
	"github.com/donhauser/atlas-agent/aimap"
	"github.com/donhauser/atlas-agent/api"
	"github.com/donhauser/atlas-agent/client"
	"github.com/donhauser/atlas-agent/config"
	"github.com/donhauser/atlas-agent/docstore"
	"github.com/donhauser/atlas-agent/llm"
	"github.com/donhauser/atlas-agent/model"
	"github.com/donhauser/atlas-agent/session"
	"github.com/donhauser/atlas-agent/tools"
)

// Options holds CLI execution options.
type Options struct {
	Provider string
	Verbose  bool
}

// Runtime is the wired application.
type Runtime struct {
	Settings config.Settings
	Agent    *agent.Agent
	Registry *tools.Registry
	Matcher  *aimap.Matcher
	Store    docstore.Store

	sessionStore *session.Store
	logger       *slog.Logger
}

// Close releases the runtime's persistent resources.
func (r *Runtime) Close() error {
	if r.sessionStore != nil {
		return r.sessionStore.Close()
	}
	return nil
}

// BuildRuntime loads settings and authoring files and wires the agent.
func BuildRuntime(opts Options) (*Runtime, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	settings, err := config.New(opts.Provider)
	if err != nil {
		return nil, err
	}
	apiKey, err := config.APIKeyFor(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewProvider(settings.LLM.Provider, llm.Options{
		Model:       settings.LLM.Model,
		APIKey:      apiKey,
		MaxTokens:   settings.LLM.MaxTokens,
		Temperature: float32(settings.LLM.Temperature),
	})
	if err != nil {
		return nil, err
	}

	store, err := docstore.OpenSqlite(settings.Store.DataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	registry := tools.NewRegistry()
	if count, err := tools.LoadDirectory(registry, settings.Authoring.ToolsDir, logger); err != nil {
		return nil, fmt.Errorf("failed to load tools: %w", err)
	} else {
		logger.Info("tools loaded", "count", count, "dir", settings.Authoring.ToolsDir)
	}

	executor := tools.NewExecutor(registry, store, logger)
	if err := tools.RegisterBuiltins(registry, executor); err != nil {
		return nil, fmt.Errorf("failed to register builtin tools: %w", err)
	}

	scopes, err := config.LoadScopes(settings.Authoring.ScopesFile)
	if err != nil {
		return nil, err
	}
	matcher := aimap.NewMatcher(scopes)
	if count, err := aimap.LoadDirectory(matcher, settings.Authoring.MapsDir, logger); err != nil {
		return nil, fmt.Errorf("failed to load maps: %w", err)
	} else {
		logger.Info("maps loaded", "count", count, "dir", settings.Authoring.MapsDir)
	}

	sessionStore, err := session.OpenStore(settings.Store.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	a := agent.New(agent.Deps{
		Provider: provider,
		Matcher:  matcher,
		Executor: executor,
		Registry: registry,
		Sessions: session.NewManager(sessionStore, logger),
		Logger:   logger,
	})

	return &Runtime{
		Settings:     settings,
		Agent:        a,
		Registry:     registry,
		Matcher:      matcher,
		Store:        store,
		sessionStore: sessionStore,
		logger:       logger,
	}, nil
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, opts Options) error {
	rt, err := BuildRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := &http.Server{
		Addr:    rt.Settings.Server.Addr(),
		Handler: api.NewServer(rt.Agent, rt.logger),
	}

	errc := make(chan error, 1)
	go func() {
		rt.logger.Info("listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// localAPI adapts the in-process agent to the client controller's
// server surface, so the REPL exercises the same controller the web
// client uses.
type localAPI struct {
	agent *agent.Agent
}

func (l localAPI) Chat(ctx context.Context, req agent.ChatRequest) (agent.ChatResponse, error) {
	return l.agent.Chat(ctx, req), nil
}

func (l localAPI) Confirm(ctx context.Context, sessionID string, calls []model.ToolCallRequest) ([]agent.ToolCallResult, error) {
	return l.agent.Confirm(ctx, sessionID, calls)
}

func (l localAPI) ClearSession(ctx context.Context, sessionID string) error {
	return l.agent.Clear(ctx, sessionID)
}

// Chat runs an interactive REPL against the in-process agent.
func Chat(ctx context.Context, opts Options, module string) error {
	rt, err := BuildRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctrl := client.NewController(localAPI{agent: rt.Agent})
	turnCtx := model.TurnContext{Module: module}
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("atlas-agent 对话模式，输入 /clear 清空会话，/quit 退出。")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/clear":
			if err := ctrl.Clear(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "clear failed: %v\n", err)
			} else {
				fmt.Println("会话已清空。")
			}
			continue
		}

		reply, err := ctrl.Send(ctx, line, turnCtx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(reply)

		for _, pending := range ctrl.Pending() {
			fmt.Printf("待确认操作 %s (requestId %s)，执行请输入 y，放弃请输入 n: ", pending.ToolID, pending.RequestID)
			if !scanner.Scan() {
				return scanner.Err()
			}
			answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
			if answer != "y" && answer != "yes" {
				ctrl.DropPending(pending.RequestID)
				fmt.Println("已放弃。")
				continue
			}
			results, err := ctrl.ConfirmTools(ctx, []model.ToolCallRequest{pending.AsRequest()})
			if err != nil {
				fmt.Fprintf(os.Stderr, "confirm failed: %v\n", err)
				continue
			}
			for _, r := range results {
				if r.Result.Success {
					fmt.Printf("%s 执行成功。\n", r.ToolID)
				} else {
					fmt.Printf("%s 执行失败: %s\n", r.ToolID, r.Result.Error.Message)
				}
			}
		}
	}
}

// PrintTools writes the loaded tool surface to stdout.
func PrintTools(opts Options) error {
	rt, err := BuildRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	desc := rt.Registry.Description("")
	if desc == "" {
		fmt.Println("no tools loaded")
		return nil
	}
	fmt.Print(desc)
	return nil
}

// PrintMaps writes the loaded maps to stdout.
func PrintMaps(opts Options) error {
	rt, err := BuildRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	maps := rt.Matcher.Maps()
	if len(maps) == 0 {
		fmt.Println("no maps loaded")
		return nil
	}
	for _, m := range maps {
		state := "enabled"
		if !m.Enabled {
			state = "disabled"
		}
		fmt.Printf("- %s (%s, module %s, priority %d, %s): triggers %s\n",
			m.ID, m.Name, m.Module, m.Priority, state, strings.Join(m.Triggers, " / "))
	}
	return nil
}
