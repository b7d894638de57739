package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"callbot/internal/tui"
)

// NewChatCmd creates the chat command
func NewChatCmd() *cobra.Command {
	var (
		sessionID string
		logFile   string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		Long: `Open an interactive console over the same assistant the HTTP API uses.

Logs go to a file so they do not disturb the screen. Say "exit" to hang up.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, logFile)
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

			ctx := context.Background()
			summary := "Knowledge base is empty."
			if report, ok := initialBuild(ctx, newRefresher(cfg, k.kb, logger), cfg.Knowledge.Path, logger); ok {
				summary = fmt.Sprintf("%d chunks. %s", report.Chunks, report.Summary)
			}

			m := tui.New(assistant, sessionID, summary, assistant.Persona().FirstMessage)
			if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "console", "session id for this conversation")
	cmd.Flags().StringVar(&logFile, "log-file", filepath.Join(os.TempDir(), "callbot-chat.log"), "where to write logs")
	return cmd
}
