package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revittco/mutacache/internal/store"
	"github.com/revittco/mutacache/internal/store/sqlite"
)

func seededJournal(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := t.TempDir() + "/journal.db"
	db, err := sqlite.New(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	for i, st := range []string{store.StatusCommitted, store.StatusUndone, store.StatusRolledBack} {
		m := &store.MutationEntry{
			Resource:  "posts",
			Operation: "update",
			Mode:      "undoable",
			IDs:       json.RawMessage(`[1]`),
			CreatedAt: time.Now().UTC().Add(-time.Duration(i) * time.Minute),
		}
		if st == store.StatusRolledBack {
			m.CreatedAt = old
		}
		require.NoError(t, db.InsertMutation(ctx, m))
		require.NoError(t, db.SettleMutation(ctx, m.ID, store.Settlement{Status: st, LatencyMs: 10, SettledAt: m.CreatedAt}))
	}
	return path
}

func runCLI(t *testing.T, path string, args ...string) string {
	t.Helper()
	orig := openJournalFromConfig
	t.Cleanup(func() { openJournalFromConfig = orig })
	openJournalFromConfig = func(cmd *cobra.Command, _ *rootOptions) (journalDB, error) {
		return openJournal(cmd.Context(), path)
	}

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.ExecuteContext(context.Background()))
	return out.String()
}

func TestJournalCommands(t *testing.T) {
	path := seededJournal(t)

	out := runCLI(t, path, "journal", "list", "--status", "undone")
	assert.Contains(t, out, "undone")
	assert.Contains(t, out, "1 of 1")

	out = runCLI(t, path, "journal", "stats", "--since", "1h")
	assert.Contains(t, out, "Committed:    1")
	assert.Contains(t, out, "Undone:       1")

	out = runCLI(t, path, "journal", "prune", "--older-than", "168h")
	assert.Contains(t, out, "pruned 1 entries")
}

func TestVersionCommand(t *testing.T) {
	out := runCLI(t, "", "version")
	assert.Equal(t, "mutacache version dev\n", out)
}
