// Package migration applies versioned schema changes and records them in
// the _schema_migrations table.
package migration

import (
	"fmt"
	"regexp"
	"time"
)

// Migration is one schema change.
type Migration struct {
	Version   string    // Timestamp version (YYYYMMDDHHmmss)
	Name      string    // Human-readable name
	SQL       string    // SQL statements to execute
	AppliedAt time.Time // When migration was applied (zero if pending)
}

var (
	versionRegex = regexp.MustCompile(`^\d{14}$`)
	nameRegex    = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// Validate checks the version and name format.
func (m Migration) Validate() error {
	if !versionRegex.MatchString(m.Version) {
		return fmt.Errorf("invalid migration version %q: want YYYYMMDDHHmmss", m.Version)
	}
	if !nameRegex.MatchString(m.Name) {
		return fmt.Errorf("invalid migration name %q: want lower_snake_case", m.Name)
	}
	return nil
}

// String returns "version_name".
func (m Migration) String() string {
	return fmt.Sprintf("%s_%s", m.Version, m.Name)
}
