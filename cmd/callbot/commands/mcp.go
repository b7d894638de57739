package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"callbot/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Run callbot as an MCP (Model Context Protocol) server on stdio.

Tools: search_knowledge, chat, knowledge_summary.`,
		Example: `  # claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "callbot": {"command": "callbot", "args": ["mcp"]}
  #   }
  # }`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the protocol.
			logger, err := newLogger(cfg.Log, "stderr")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			k, err := newKnowledge(cfg, logger)
			if err != nil {
				return err
			}
			defer k.Close()
			assistant, err := newAssistant(cfg, k.kb, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			refresher := newRefresher(cfg, k.kb, logger)
			initialBuild(ctx, refresher, cfg.Knowledge.Path, logger)
			if err := refresher.Start(ctx); err != nil {
				return err
			}
			defer refresher.Stop()

			server := mcp.NewServer(versionInfo.Version, k.kb, assistant, logger)
			logger.Info("MCP server starting on stdio")

			serverErr := make(chan error, 1)
			go func() { serverErr <- mcpserver.ServeStdio(server) }()

			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			}
			return nil
		},
	}
	return cmd
}
