package db

import (
	"fmt"

	"github.com/knowva/knowva-server/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// autoMigrateModels applies the schema for the auth tables.
func autoMigrateModels(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.UserSession{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}

// ddl defines an index or DDL statement to apply.
type ddl struct {
	name string // Human-readable name for error reporting.
	sql  string // SQL to execute.
}

// sharedDDLs are index statements valid on both dialects.
var sharedDDLs = []ddl{
	{
		name: "idx_refresh_tokens_user_id_usable",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id_usable
			ON refresh_tokens (user_id)
			WHERE is_revoked = false
		`,
	},
	{
		name: "idx_refresh_tokens_expires_at",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at
			ON refresh_tokens (expires_at)
		`,
	},
	{
		name: "idx_user_sessions_user_id_created_at",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_user_sessions_user_id_created_at
			ON user_sessions (user_id, created_at DESC)
		`,
	},
	{
		name: "idx_user_sessions_active",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_user_sessions_active
			ON user_sessions (user_id, created_at)
			WHERE is_active = true
		`,
	},
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrateModels(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}

	_ = conn.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`).Error

	for _, item := range sharedDDLs {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	// trgmIndex defines trigram and fallback index statements.
	type trgmIndex struct {
		name     string // Logical index name.
		trgmSQL  string // Trigram index SQL.
		lowerSQL string // Lowercase fallback index SQL.
	}
	trgmIndexes := []trgmIndex{
		{
			name: "idx_users_username",
			trgmSQL: `
				CREATE INDEX IF NOT EXISTS idx_users_username_trgm
				ON users USING gin (username gin_trgm_ops)
			`,
			lowerSQL: `
				CREATE INDEX IF NOT EXISTS idx_users_username_lower
				ON users (LOWER(username))
			`,
		},
		{
			name: "idx_users_email",
			trgmSQL: `
				CREATE INDEX IF NOT EXISTS idx_users_email_trgm
				ON users USING gin (email gin_trgm_ops)
			`,
			lowerSQL: `
				CREATE INDEX IF NOT EXISTS idx_users_email_lower
				ON users (LOWER(email))
			`,
		},
	}
	for _, item := range trgmIndexes {
		if errIdx := conn.Exec(item.trgmSQL).Error; errIdx != nil {
			if errLower := conn.Exec(item.lowerSQL).Error; errLower != nil {
				return fmt.Errorf("db: create index %s: %w", item.name, errLower)
			}
		}
	}

	return nil
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrateModels(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}

	for _, item := range sharedDDLs {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}
