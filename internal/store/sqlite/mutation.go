package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/revittco/mutacache/internal/store"
)

const mutationColumns = `id, resource, operation, mode, status, ids, params,
	error, latency_ms, created_at, settled_at`

func (d *DB) InsertMutation(ctx context.Context, m *store.MutationEntry) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = nowUTC()
	}
	if m.Status == "" {
		m.Status = store.StatusPending
	}

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO mutations (`+mutationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Resource, m.Operation, m.Mode, m.Status,
		jsonColumn(m.IDs, "[]"), jsonColumn(m.Params, "{}"),
		m.Error, m.LatencyMs, formatTime(m.CreatedAt), nullTime(m.SettledAt),
	)
	return insertError(err)
}

// SettleMutation moves a pending entry to its final status. Settling an
// entry twice returns store.ErrConflict.
func (d *DB) SettleMutation(ctx context.Context, id string, s store.Settlement) error {
	if s.SettledAt.IsZero() {
		s.SettledAt = nowUTC()
	}
	return d.withTx(ctx, func(q queryable) error {
		var status string
		err := q.QueryRowContext(ctx, `SELECT status FROM mutations WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		if status != store.StatusPending {
			return fmt.Errorf("mutation %s already %s: %w", id, status, store.ErrConflict)
		}

		_, err = q.ExecContext(ctx, `
			UPDATE mutations SET status = ?, error = ?, latency_ms = ?, settled_at = ?
			WHERE id = ? AND status = ?`,
			s.Status, s.Error, s.LatencyMs, formatTime(s.SettledAt),
			id, store.StatusPending,
		)
		return err
	})
}

func (d *DB) GetMutation(ctx context.Context, id string) (*store.MutationEntry, error) {
	row := d.q.QueryRowContext(ctx,
		`SELECT `+mutationColumns+` FROM mutations WHERE id = ?`, id)
	m, err := scanMutationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return m, err
}

func (d *DB) QueryMutations(
	ctx context.Context, f store.MutationFilter,
) ([]store.MutationEntry, int, error) {
	where, args := buildMutationWhere(f)

	// Count total.
	var total int
	countQ := "SELECT COUNT(*) FROM mutations" + where
	if err := d.q.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Fetch page.
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	dataQ := `SELECT ` + mutationColumns + ` FROM mutations` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	dataArgs := append(args, limit, f.Offset)

	rows, err := d.q.QueryContext(ctx, dataQ, dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []store.MutationEntry
	for rows.Next() {
		m, err := scanMutationRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan mutation row: %w", err)
		}
		out = append(out, *m)
	}
	return out, total, rows.Err()
}

func (d *DB) GetMutationStats(
	ctx context.Context, after, before time.Time,
) (*store.MutationStats, error) {
	var s store.MutationStats
	err := d.q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'committed'),
			COUNT(*) FILTER (WHERE status = 'rolled_back'),
			COUNT(*) FILTER (WHERE status = 'undone'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(AVG(latency_ms) FILTER (WHERE status != 'pending'), 0)
		FROM mutations
		WHERE created_at >= ? AND created_at <= ?`,
		formatTime(after), formatTime(before),
	).Scan(&s.Total, &s.Pending, &s.Committed, &s.RolledBack, &s.Undone, &s.Failed, &s.AvgLatencyMs)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// PruneMutations deletes settled entries created before the cutoff.
func (d *DB) PruneMutations(ctx context.Context, before time.Time) (int, error) {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM mutations WHERE created_at < ? AND status != ?`,
		formatTime(before), store.StatusPending,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func buildMutationWhere(f store.MutationFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Resource != nil {
		conds = append(conds, "resource = ?")
		args = append(args, *f.Resource)
	}
	if f.Operation != nil {
		conds = append(conds, "operation = ?")
		args = append(args, *f.Operation)
	}
	if f.Mode != nil {
		conds = append(conds, "mode = ?")
		args = append(args, *f.Mode)
	}
	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *f.Status)
	}
	if f.After != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(*f.After))
	}
	if f.Before != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, formatTime(*f.Before))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMutationRow(row rowScanner) (*store.MutationEntry, error) {
	var m store.MutationEntry
	var ids, params, createdAt string
	var settledAt sql.NullString
	err := row.Scan(
		&m.ID, &m.Resource, &m.Operation, &m.Mode, &m.Status,
		&ids, &params, &m.Error, &m.LatencyMs, &createdAt, &settledAt,
	)
	if err != nil {
		return nil, err
	}
	m.IDs = []byte(ids)
	m.Params = []byte(params)
	m.CreatedAt = parseTime(createdAt)
	m.SettledAt = timePtr(settledAt)
	return &m, nil
}
