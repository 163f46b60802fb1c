package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// InMemoryDSN is the shared in-memory SQLite DSN used when no database is
// configured. Data does not survive a restart.
const InMemoryDSN = "file::memory:?cache=shared"

// Open connects to the database selected by the DSN: PostgreSQL for
// postgres URLs and keyword DSNs, SQLite for file paths, and the in-memory
// store when the DSN is empty.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)

	var dialector gorm.Dialector
	switch {
	case trimmed == "":
		dialector = sqlite.Open(InMemoryDSN)
	case strings.HasPrefix(trimmed, "postgres://"),
		strings.HasPrefix(trimmed, "postgresql://"),
		strings.Contains(trimmed, "host="):
		dialector = postgres.Open(trimmed)
	default:
		dialector = sqlite.Open(trimmed)
	}

	conn, errOpen := gorm.Open(dialector, &gorm.Config{})
	if errOpen != nil {
		return nil, fmt.Errorf("db: open: %w", errOpen)
	}
	return conn, nil
}
