package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command
func NewSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Print the passages the assistant would retrieve for a caller message.

With the in-memory store the knowledge file is indexed first.

Examples:
  callbot search "when do you open"
  callbot search --limit 3 "parking"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePositiveInt(limit, "limit"); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
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

			if cfg.VectorStore.Type == "memory" {
				if _, err := k.kb.RebuildFromFile(cmd.Context(), cfg.Knowledge.Path); err != nil {
					return err
				}
			}
			matches, err := k.kb.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSCORE\tCONTEXT")
			for i, m := range matches {
				fmt.Fprintf(w, "%d\t%.3f\t%s\n", i+1, m.Score, oneLine(m.Payload.Context, 100))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 8, "Maximum results to return")
	return cmd
}

func validatePositiveInt(v int, name string) error {
	if v < 1 {
		return fmt.Errorf("--%s must be at least 1, got %d", name, v)
	}
	return nil
}

// oneLine collapses whitespace and cuts s to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
