package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/revittco/mutacache/internal/store"
)

// Journal timestamps are stored as RFC 3339 text in UTC, so created_at
// sorts and compares as a string.
const timeFormat = time.RFC3339

var nowUTC = func() time.Time { return time.Now().UTC() }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

// nullTime maps a nil settled_at to SQL NULL.
func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

// jsonColumn stores an absent ids or params payload as its empty JSON form.
func jsonColumn(data json.RawMessage, empty string) string {
	if len(data) == 0 {
		return empty
	}
	return string(data)
}

// insertError maps a duplicate mutation id to store.ErrAlreadyExists.
func insertError(err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return store.ErrAlreadyExists
		}
	}
	return err
}
