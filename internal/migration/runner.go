// internal/migration/runner.go
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"
)

const trackingTable = `
CREATE TABLE IF NOT EXISTS _schema_migrations (
    version     TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    applied_at  TEXT NOT NULL DEFAULT (datetime('now'))
)`

// Runner handles migration execution against a database
type Runner struct {
	db *sql.DB
}

// NewRunner creates a new migration runner
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// GetApplied returns all applied migrations, ordered by version ascending
func (r *Runner) GetApplied(ctx context.Context) ([]Migration, error) {
	if _, err := r.db.ExecContext(ctx, trackingTable); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT version, name, applied_at
		FROM _schema_migrations
		ORDER BY version ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var m Migration
		var appliedAt string
		if err := rows.Scan(&m.Version, &m.Name, &appliedAt); err != nil {
			return nil, err
		}
		m.AppliedAt, _ = time.Parse(time.DateTime, appliedAt)
		migrations = append(migrations, m)
	}

	return migrations, rows.Err()
}

// Apply runs every migration not yet recorded, oldest version first, each
// in its own transaction. It returns the migrations it applied.
func (r *Runner) Apply(ctx context.Context, migrations []Migration) ([]Migration, error) {
	pending := slices.Clone(migrations)
	slices.SortFunc(pending, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	for i, m := range pending {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if i > 0 && pending[i-1].Version == m.Version {
			return nil, fmt.Errorf("duplicate migration version %s", m.Version)
		}
	}

	applied, err := r.GetApplied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	var ran []Migration
	for _, m := range pending {
		if done[m.Version] {
			continue
		}
		if err := r.applyOne(ctx, m); err != nil {
			return ran, err
		}
		ran = append(ran, m)
	}
	return ran, nil
}

func (r *Runner) applyOne(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting migration %s: %w", m, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("applying migration %s: %w", m, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO _schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
		return fmt.Errorf("recording migration %s: %w", m, err)
	}
	return tx.Commit()
}
