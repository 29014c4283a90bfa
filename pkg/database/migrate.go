package database

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/registree/pkg/config"
)

//go:embed migrations
var migrationFS embed.FS

// Migrate applies the embedded schema files for the connection's dialect.
// Applied versions are tracked in schema_migrations.
func Migrate(db *sqlx.DB) error {
	dialect := config.DriverSQLite
	if db.DriverName() == config.DriverPostgres {
		dialect = config.DriverPostgres
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := migrationFiles(dialect)
	if err != nil {
		return err
	}

	for _, name := range files {
		var applied int
		if err := db.Get(&applied, db.Rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`), name); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}
		raw, err := migrationFS.ReadFile(path.Join("migrations", dialect, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		for _, stmt := range SplitStatements(string(raw)) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("execute migration %s: %w", name, err)
			}
		}
		if _, err := tx.Exec(tx.Rebind(`INSERT INTO schema_migrations (version) VALUES (?)`), name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

func migrationFiles(dialect string) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, path.Join("migrations", dialect))
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// SplitStatements breaks a schema file into individual statements. Full-line
// "--" comments are dropped first, so they may contain semicolons; a
// statement ends at a line whose last character is ";".
func SplitStatements(raw string) []string {
	var (
		stmts   []string
		current []string
	)
	flush := func() {
		stmt := strings.TrimSpace(strings.Join(current, "\n"))
		stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current = current[:0]
	}
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current = append(current, line)
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	return stmts
}
