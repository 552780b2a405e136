package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrations embed.FS

// schemaStep is one embedded migration, numbered by its NNN_ file prefix.
type schemaStep struct {
	version int
	name    string
}

// migrate brings the journal schema up to the newest embedded step and
// returns the versions it applied, oldest first.
func migrate(ctx context.Context, db *sql.DB) ([]int, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS journal_schema (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return nil, fmt.Errorf("create schema table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM journal_schema`,
	).Scan(&current); err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	steps, err := schemaSteps(migrations)
	if err != nil {
		return nil, err
	}

	var applied []int
	for _, st := range steps {
		if st.version <= current {
			continue
		}
		if err := applyStep(ctx, db, st); err != nil {
			return applied, fmt.Errorf("apply %s: %w", st.name, err)
		}
		applied = append(applied, st.version)
	}
	return applied, nil
}

func schemaSteps(fsys fs.FS) ([]schemaStep, error) {
	names, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	steps := make([]schemaStep, 0, len(names))
	for _, name := range names {
		prefix, _, ok := strings.Cut(strings.TrimPrefix(name, "migrations/"), "_")
		if !ok {
			continue
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		steps = append(steps, schemaStep{version: v, name: name})
	}
	slices.SortFunc(steps, func(a, b schemaStep) int { return a.version - b.version })
	return steps, nil
}

func applyStep(ctx context.Context, db *sql.DB, st schemaStep) error {
	ddl, err := fs.ReadFile(migrations, st.name)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(ddl)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO journal_schema (version, applied_at) VALUES (?, ?)`,
		st.version, formatTime(nowUTC()),
	); err != nil {
		return err
	}
	return tx.Commit()
}
