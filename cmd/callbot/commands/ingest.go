package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Rebuild the knowledge base from a document",
		Long: `Extract, chunk and embed a document and replace the configured collection
with it. Without an argument knowledge.path is used.

Only persistent vector stores (qdrant, sqlite) keep the result after the
command exits.

Examples:
  callbot ingest ./Knowledge_base/faq.pdf
  callbot --config prod.yaml ingest`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path := cfg.Knowledge.Path
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no document given and knowledge.path is empty")
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			k, err := newKnowledge(cfg, logger)
			if err != nil {
				return err
			}
			defer k.Close()

			report, err := k.kb.RebuildFromFile(cmd.Context(), path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %s into %q: %d chunks in %s\n",
				path, k.kb.Collection(), report.Chunks, report.Duration.Round(time.Millisecond))
			if report.Summary != "" {
				fmt.Fprintf(out, "\nSummary:\n%s\n", report.Summary)
			}
			return nil
		},
	}
	return cmd
}
