// cmd/init.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/urza/Yap/internal/chat"
	"github.com/urza/Yap/internal/db"
	"github.com/urza/Yap/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new yap database",
	Long:  `Creates a new SQLite database with the chat schema and the default room.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		defaultRoom, _ := cmd.Flags().GetString("default-room")

		// Check if file already exists
		if _, err := os.Stat(dbPath); err == nil {
			return fmt.Errorf("database already exists at %s", dbPath)
		}

		database, err := db.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer database.Close()

		if err := database.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		cfg := chat.DefaultConfig()
		cfg.DefaultRoom = defaultRoom
		engine := chat.New(cfg, chat.WithGateway(store.New(database)))
		if err := engine.Load(context.Background()); err != nil {
			engine.Close()
			return fmt.Errorf("failed to seed database: %w", err)
		}
		// Close drains the pending writes, including the default room.
		engine.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized database at %s with room %q\n", dbPath, defaultRoom)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("db", "yap.db", "Path to database file")
	initCmd.Flags().String("default-room", "lobby", "Name of the default room")
}
