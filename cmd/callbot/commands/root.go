package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"callbot/internal/config"
)

var cfgPath string

// NewRootCmd creates the callbot command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callbot",
		Short: "Voice FAQ and booking assistant",
		Long: `Callbot answers callers from a knowledge base.

It builds a vector index from a document (PDF, Markdown, HTML or text),
retrieves the passages relevant to each caller turn, keeps track of the
caller's name, contact and preferred time, and asks a language model
for the reply.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ./config.yaml, then ~/.config/callbot/config.yaml)")

	cmd.AddCommand(
		NewServeCmd(),
		NewChatCmd(),
		NewIngestCmd(),
		NewSearchCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads .env and the config file named by --config, or the
// default locations.
func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
