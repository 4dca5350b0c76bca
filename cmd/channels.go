// cmd/channels.go
package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/urza/Yap/internal/store"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Inspect persisted channels",
}

var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all channels",
	Long:  `Display every persisted room and direct message with its message count.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openExisting(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		snap, err := store.New(database).LoadSnapshot(context.Background())
		if err != nil {
			return fmt.Errorf("failed to load channels: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(snap.Channels) == 0 {
			fmt.Fprintln(out, "No channels found")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tNAME\tMESSAGES\tCREATED")
		for _, c := range snap.Channels {
			name := c.Name
			if c.IsDirect() {
				name = c.ParticipantA + " <-> " + c.ParticipantB
			} else if c.IsDefault {
				name += " (default)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Kind, name,
				len(snap.MessagesByChannel[c.ID]), c.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	channelsCmd.AddCommand(channelsListCmd)

	// Add --db flag to channels parent command (inherited by subcommands)
	channelsCmd.PersistentFlags().String("db", "yap.db", "Path to database file")
}
