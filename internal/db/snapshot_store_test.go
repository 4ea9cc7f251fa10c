package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "teamail.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "teamail.sqlite3")
	ctx := context.Background()

	store, err := Open(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Second open runs migrations idempotently
	store, err = Open(ctx, dbPath)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestSnapshotStore_SaveLoadRoundTrip(t *testing.T) {
	ss := NewSnapshotStore(openTestStore(t))
	ctx := context.Background()

	msgs := []SnapshotMessage{
		{MessageID: "m1", LabelIDs: []string{"INBOX", "UNREAD"}},
		{MessageID: "m2", LabelIDs: []string{"INBOX"}},
		{MessageID: "m3"},
	}
	fetchedAt := time.Now().Unix()

	require.NoError(t, ss.SaveThreadSnapshot(ctx, "user@example.com", "t1", msgs, fetchedAt))

	loaded, loadedAt, ok, err := ss.LoadThreadSnapshot(ctx, "user@example.com", "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fetchedAt, loadedAt)
	require.Len(t, loaded, 3)
	// Observed order is preserved
	assert.Equal(t, "m1", loaded[0].MessageID)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, loaded[0].LabelIDs)
	assert.Equal(t, "m2", loaded[1].MessageID)
	assert.Equal(t, "m3", loaded[2].MessageID)
	assert.Empty(t, loaded[2].LabelIDs)
}

func TestSnapshotStore_SaveReplacesPrevious(t *testing.T) {
	ss := NewSnapshotStore(openTestStore(t))
	ctx := context.Background()

	require.NoError(t, ss.SaveThreadSnapshot(ctx, "a@x.com", "t1",
		[]SnapshotMessage{{MessageID: "m1", LabelIDs: []string{"INBOX"}}}, 100))
	require.NoError(t, ss.SaveThreadSnapshot(ctx, "a@x.com", "t1",
		[]SnapshotMessage{{MessageID: "m1"}, {MessageID: "m2"}}, 200))

	loaded, loadedAt, ok, err := ss.LoadThreadSnapshot(ctx, "a@x.com", "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(200), loadedAt)
	assert.Len(t, loaded, 2)
	assert.Empty(t, loaded[0].LabelIDs)
}

func TestSnapshotStore_LoadMissing(t *testing.T) {
	ss := NewSnapshotStore(openTestStore(t))

	_, _, ok, err := ss.LoadThreadSnapshot(context.Background(), "a@x.com", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotStore_AccountsIsolated(t *testing.T) {
	ss := NewSnapshotStore(openTestStore(t))
	ctx := context.Background()

	require.NoError(t, ss.SaveThreadSnapshot(ctx, "a@x.com", "t1",
		[]SnapshotMessage{{MessageID: "m1"}}, 100))

	_, _, ok, err := ss.LoadThreadSnapshot(ctx, "b@x.com", "t1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotStore_Delete(t *testing.T) {
	ss := NewSnapshotStore(openTestStore(t))
	ctx := context.Background()

	require.NoError(t, ss.SaveThreadSnapshot(ctx, "a@x.com", "t1",
		[]SnapshotMessage{{MessageID: "m1"}}, 100))
	require.NoError(t, ss.DeleteThreadSnapshot(ctx, "a@x.com", "t1"))

	_, _, ok, err := ss.LoadThreadSnapshot(ctx, "a@x.com", "t1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotStore_Prune(t *testing.T) {
	ss := NewSnapshotStore(openTestStore(t))
	ctx := context.Background()

	require.NoError(t, ss.SaveThreadSnapshot(ctx, "a@x.com", "old",
		[]SnapshotMessage{{MessageID: "m1"}}, 100))
	require.NoError(t, ss.SaveThreadSnapshot(ctx, "a@x.com", "new",
		[]SnapshotMessage{{MessageID: "m2"}}, 900))

	n, err := ss.PruneSnapshots(ctx, "a@x.com", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, _, ok, err := ss.LoadThreadSnapshot(ctx, "a@x.com", "old")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = ss.LoadThreadSnapshot(ctx, "a@x.com", "new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSnapshotStore_InvalidInputs(t *testing.T) {
	ss := NewSnapshotStore(openTestStore(t))
	ctx := context.Background()

	assert.Error(t, ss.SaveThreadSnapshot(ctx, "", "t1", []SnapshotMessage{{MessageID: "m1"}}, 1))
	assert.Error(t, ss.SaveThreadSnapshot(ctx, "a@x.com", "", []SnapshotMessage{{MessageID: "m1"}}, 1))
	assert.Error(t, ss.SaveThreadSnapshot(ctx, "a@x.com", "t1", nil, 1))
	assert.Error(t, ss.SaveThreadSnapshot(ctx, "a@x.com", "t1", []SnapshotMessage{{}}, 1))
}

func TestSnapshotStore_NilSafe(t *testing.T) {
	var ss *SnapshotStore
	ctx := context.Background()

	assert.Error(t, ss.SaveThreadSnapshot(ctx, "a@x.com", "t1", []SnapshotMessage{{MessageID: "m1"}}, 1))
	_, _, _, err := ss.LoadThreadSnapshot(ctx, "a@x.com", "t1")
	assert.Error(t, err)
	assert.Nil(t, NewSnapshotStore(nil))
}
