package db

import (
	"context"
	"testing"
)

func TestRunMigrations(t *testing.T) {
	database, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for _, table := range []string{"channels", "messages", "message_images", "reactions"} {
		var name string
		err := database.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not found: %v", table, err)
		}
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	database, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		t.Fatalf("first migration failed: %v", err)
	}
	if err := database.RunMigrations(); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}

	applied, err := database.AppliedMigrations(context.Background())
	if err != nil {
		t.Fatalf("AppliedMigrations failed: %v", err)
	}
	if len(applied) != len(schema) {
		t.Errorf("expected %d recorded migrations, got %d", len(schema), len(applied))
	}
}
