// cmd/migrate.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/urza/Yap/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Schema migration commands",
	Long:  `Inspect and apply the versioned chat schema. 'yap serve' applies pending migrations on start.`,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openExisting(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		applied, err := database.AppliedMigrations(context.Background())
		if err != nil {
			return fmt.Errorf("failed to read migrations: %w", err)
		}
		appliedAt := make(map[string]string, len(applied))
		for _, m := range applied {
			appliedAt[m.Version] = m.AppliedAt.Format("2006-01-02 15:04")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
		for _, m := range db.Migrations() {
			at, ok := appliedAt[m.Version]
			if !ok {
				at = "pending"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.Version, m.Name, at)
		}
		return w.Flush()
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openExisting(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		before, err := database.AppliedMigrations(context.Background())
		if err != nil {
			return fmt.Errorf("failed to read migrations: %w", err)
		}
		if err := database.RunMigrations(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", len(db.Migrations())-len(before))
		return nil
	},
}

// openExisting opens the --db database, refusing to create a new file.
func openExisting(cmd *cobra.Command) (*db.DB, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found at %s. Run 'yap init' first", dbPath)
	}
	database, err := db.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateUpCmd)

	migrateCmd.PersistentFlags().String("db", "yap.db", "Path to database file")
}
