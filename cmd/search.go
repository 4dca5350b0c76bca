// cmd/search.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/urza/Yap/internal/fts"
)

var searchCmd = &cobra.Command{
	Use:   "search <channel-id> <query>",
	Short: "Search persisted messages of a channel",
	Long: `Full-text search over stored message bodies.

Examples:
  yap search 0190f6c2-... deploy
  yap search 0190f6c2-... '"release notes"' --type websearch`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openExisting(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		tokenizer, _ := cmd.Flags().GetString("tokenizer")
		queryType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		idx, err := fts.New(database, tokenizer)
		if err != nil {
			return err
		}
		if err := idx.Ensure(cmd.Context()); err != nil {
			return fmt.Errorf("failed to prepare search index: %w", err)
		}

		hits, err := idx.Search(cmd.Context(), args[0], args[1], queryType, limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(hits) == 0 {
			fmt.Fprintln(out, "No messages found")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAUTHOR\tCREATED\tSNIPPET")
		for _, h := range hits {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.MessageID, h.Author, h.CreatedAt.Format("2006-01-02 15:04"), h.Snippet)
		}
		return w.Flush()
	},
}

var searchReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the message search index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openExisting(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		tokenizer, _ := cmd.Flags().GetString("tokenizer")
		idx, err := fts.New(database, tokenizer)
		if err != nil {
			return err
		}
		if err := idx.Ensure(cmd.Context()); err != nil {
			return fmt.Errorf("failed to prepare search index: %w", err)
		}
		if err := idx.Rebuild(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Search index rebuilt")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.AddCommand(searchReindexCmd)

	searchCmd.PersistentFlags().String("db", "yap.db", "Path to database file")
	searchCmd.PersistentFlags().String("tokenizer", "unicode61", "FTS5 tokenizer used when the index is first created")
	searchCmd.Flags().String("type", "plain", "Query type: plain, phrase, websearch or fts")
	searchCmd.Flags().Int("limit", 20, "Maximum number of hits")
}
