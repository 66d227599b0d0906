/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package gamelog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// SQLStore persists the log through database/sql, on sqlite or postgres.
type SQLStore struct {
	dialect Dialect
	db      *sql.DB
}

func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	var driverName string

	dsn = strings.TrimSpace(dsn)

	switch dialect {
	case DialectSQLite:
		driverName = "sqlite"
		if dsn == "" {
			dsn = filepath.Join("data", "roulette.sqlite")
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	case DialectPostgres:
		driverName = "pgx"
		if dsn == "" {
			return nil, fmt.Errorf("%s log requires a dsn", dialect)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	s := &SQLStore{dialect: dialect, db: db}
	if err := s.applyMigrations(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLStore) bind(pos int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}

	return "?"
}

func (s *SQLStore) applyMigrations(ctx context.Context) error {
	create := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}

	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate schema migrations: %w", err)
	}
	rows.Close()

	files, err := fs.Glob(migrationFS, fmt.Sprintf("migrations/%s/*.sql", s.dialect))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		base := filepath.Base(file)
		if applied[base] {
			continue
		}

		body, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", file, err)
		}

		q := fmt.Sprintf("INSERT INTO schema_migrations (version, applied_at) VALUES (%s, %s)", s.bind(1), s.bind(2))
		if _, err := tx.ExecContext(ctx, q, base, time.Now().UnixNano()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}

	return nil
}

func (s *SQLStore) Append(ctx context.Context, e Entry) error {
	q := fmt.Sprintf(
		"INSERT INTO selections (id, table_id, slot, at_nanos) VALUES (%s, %s, %s, %s)",
		s.bind(1), s.bind(2), s.bind(3), s.bind(4),
	)

	if _, err := s.db.ExecContext(ctx, q, e.ID.String(), e.Table, e.Slot, e.At.UnixNano()); err != nil {
		return fmt.Errorf("insert selection: %w", err)
	}

	return nil
}

func (s *SQLStore) Entries(ctx context.Context, table string) ([]Entry, error) {
	q := "SELECT id, table_id, slot, at_nanos FROM selections"
	args := []any{}
	if table != "" {
		q += " WHERE table_id = " + s.bind(1)
		args = append(args, table)
	}
	q += " ORDER BY at_nanos, id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query selections: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			id    string
			e     Entry
			nanos int64
		)
		if err := rows.Scan(&id, &e.Table, &e.Slot, &nanos); err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}

		e.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse selection id %q: %w", id, err)
		}
		e.At = time.Unix(0, nanos).UTC()

		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate selections: %w", err)
	}

	return out, nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM selections"); err != nil {
		return fmt.Errorf("clear selections: %w", err)
	}

	return nil
}

func (s *SQLStore) Meta(ctx context.Context) (Meta, error) {
	var (
		policy string
		nanos  int64
	)

	err := s.db.QueryRowContext(ctx, "SELECT policy, last_reset_nanos FROM log_meta WHERE id = 1").Scan(&policy, &nanos)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Meta{}, nil
	case err != nil:
		return Meta{}, fmt.Errorf("read log meta: %w", err)
	}

	return Meta{Policy: Policy(policy), LastReset: time.Unix(0, nanos).UTC()}, nil
}

func (s *SQLStore) SaveMeta(ctx context.Context, m Meta) error {
	q := fmt.Sprintf(`
		INSERT INTO log_meta (id, policy, last_reset_nanos) VALUES (1, %s, %s)
		ON CONFLICT (id) DO UPDATE SET policy = excluded.policy, last_reset_nanos = excluded.last_reset_nanos
	`, s.bind(1), s.bind(2))

	if _, err := s.db.ExecContext(ctx, q, string(m.Policy), m.LastReset.UnixNano()); err != nil {
		return fmt.Errorf("save log meta: %w", err)
	}

	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
