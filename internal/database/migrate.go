package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one embedded .sql file.  Version is the file name without
// the extension (e.g. "0001_init").
type Migration struct {
	Version string
	SQL     string
}

// LoadMigrations returns the embedded migrations sorted by version.
func LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), SQL: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Statements splits a migration body on ';' at line end.  The driver is
// opened without multiStatements so each statement runs on its own.
func Statements(body string) []string {
	var out []string
	for _, part := range strings.Split(body, ";\n") {
		stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations and returns the versions it applied.  MySQL commits
// DDL implicitly, so a failed migration is not rolled back; re-running
// after a fix continues from the failed file.
func Migrate(ctx context.Context, db *sql.DB) ([]string, error) {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version    VARCHAR(64) NOT NULL PRIMARY KEY,
			applied_at DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	migrations, err := LoadMigrations()
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	var done []string
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		for _, stmt := range Statements(m.SQL) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return done, fmt.Errorf("migration %s: %w", m.Version, err)
			}
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			return done, fmt.Errorf("record migration %s: %w", m.Version, err)
		}
		done = append(done, m.Version)
	}
	return done, nil
}
