// Package main provides the atlas-agent CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/donhauser/atlas-agent/cli"
)

var (
	provider string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "atlas-agent",
		Short: "AI agent orchestration for the business-management app",
		Long: `atlas-agent runs the AI agent orchestration layer: authored tools and
plan maps over a document store, with confirmation gates for
state-changing operations and a bounded UI rendering protocol.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "openai", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(mapsCmd())
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func opts() cli.Options {
	return cli.Options{Provider: provider, Verbose: verbose}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cli.Serve(ctx, opts())
		},
	}
}

func chatCmd() *cobra.Command {
	var module string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat against the in-process agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(cmd.Context(), opts(), module)
		},
	}
	cmd.Flags().StringVar(&module, "module", "crm", "Module scope for map matching")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the loaded tool definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.PrintTools(opts())
		},
	}
}

func mapsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maps",
		Short: "List the loaded plan maps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.PrintMaps(opts())
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose read-only tools as an MCP stdio server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ServeMCP(opts())
		},
	}
}
