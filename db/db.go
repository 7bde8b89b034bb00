// Package db opens the watch database and applies its schema migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var migrationPattern = regexp.MustCompile(`^(\d{3})-.*\.sql$`)

// TimeLayout is how timestamps are stored. Values are always UTC so that
// string comparison in SQL orders them correctly.
const TimeLayout = "2006-01-02 15:04:05"

// Config selects the database. A non-empty TursoURL wins over Path.
type Config struct {
	Path       string
	TursoURL   string
	TursoToken string
}

// ConfigFromEnv fills the Turso settings from TURSO_DATABASE_URL and
// TURSO_AUTH_TOKEN, falling back to a local file at path.
func ConfigFromEnv(path string) Config {
	return Config{
		Path:       path,
		TursoURL:   os.Getenv("TURSO_DATABASE_URL"),
		TursoToken: os.Getenv("TURSO_AUTH_TOKEN"),
	}
}

// Open opens a database connection.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.TursoURL != "" {
		return openTurso(cfg.TursoURL, cfg.TursoToken)
	}
	return openLocalSQLite(cfg.Path)
}

// OpenAndMigrate opens the database and brings its schema up to date.
func OpenAndMigrate(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

func openTurso(url, token string) (*sql.DB, error) {
	// libsql driver expects: libsql://host?authToken=xxx
	connStr := url
	if token != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		connStr = url + sep + "authToken=" + token
	}

	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("open turso: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping turso: %w", err)
	}

	slog.Info("db: connected to Turso", "url", url)
	return db, nil
}

func openLocalSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("db: no database path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps PRAGMAs and writes on one handle.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys=ON;",
		"PRAGMA journal_mode=wal;",
		"PRAGMA busy_timeout=1000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	slog.Info("db: connected to local SQLite", "path", path)
	return db, nil
}

// RunMigrations executes the embedded migrations (NNN-*.sql) that have not
// run yet, in numeric order. Each file records itself in the migrations table.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var migrations []string
	for _, e := range entries {
		if !e.IsDir() && migrationPattern.MatchString(e.Name()) {
			migrations = append(migrations, e.Name())
		}
	}
	sort.Strings(migrations)

	executed, err := executedMigrations(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		n, err := strconv.Atoi(migrationPattern.FindStringSubmatch(m)[1])
		if err != nil {
			return fmt.Errorf("parse migration number %s: %w", m, err)
		}
		if executed[n] {
			continue
		}
		if err := executeMigration(ctx, db, m); err != nil {
			return fmt.Errorf("execute %s: %w", m, err)
		}
		slog.Info("db: applied migration", "file", m, "number", n)
	}
	return nil
}

func executedMigrations(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	executed := make(map[int]bool)

	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='migrations'").Scan(&tableName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		slog.Info("db: migrations table not found; running all migrations")
		return executed, nil
	case err != nil:
		return nil, fmt.Errorf("check migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT migration_number FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("query executed migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan migration number: %w", err)
		}
		executed[n] = true
	}
	return executed, rows.Err()
}

func executeMigration(ctx context.Context, db *sql.DB, filename string) error {
	content, err := migrationFS.ReadFile("migrations/" + filename)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("exec %s: %w", filename, err)
	}
	return nil
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a stored timestamp. Invalid or NULL values give the zero time.
func ParseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
