package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-mutation"
	"github.com/goliatone/go-mutation/store"
)

type doc struct {
	mutation.Identity
	Title string `json:"title"`
}

func newDoc(title string) *doc {
	return &doc{Identity: mutation.Identity{ID: uuid.New()}, Title: title}
}

func TestUnitOfWorkInsertAndFind(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	uow := New[*doc](db, "doc")

	d := newDoc("first")
	require.NoError(t, uow.Insert(ctx, d))

	_, found, err := uow.Find(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, found, "queued changes are not visible before SaveChanges")

	res := uow.SaveChanges(ctx, false)
	require.True(t, res.OK, "%v", res.Err)

	got, found, err := uow.Find(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first", got.Title)

	got.Title = "mutated"
	again, _, _ := uow.Find(ctx, d.ID)
	assert.Equal(t, "first", again.Title, "stored documents are not shared with callers")
}

func TestUnitOfWorkSaveChangesIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	uow := New[*doc](db, "doc")

	existing := newDoc("existing")
	require.NoError(t, uow.Insert(ctx, existing))
	require.True(t, uow.SaveChanges(ctx, false).OK)

	fresh := newDoc("fresh")
	require.NoError(t, uow.Insert(ctx, fresh))
	require.NoError(t, uow.Insert(ctx, existing))

	res := uow.SaveChanges(ctx, false)
	assert.False(t, res.OK)
	assert.ErrorContains(t, res.Err, "already exists")

	_, found, _ := uow.Find(ctx, fresh.ID)
	assert.False(t, found, "no change from a failed flush is applied")
}

func TestUnitOfWorkRejectsInvalidEntities(t *testing.T) {
	ctx := context.Background()
	uow := New[*doc](NewDB(), "doc")

	assert.Error(t, uow.Insert(ctx, nil))
	assert.Error(t, uow.Insert(ctx, &doc{Title: "no id"}))
}

func TestUnitOfWorkUpdateAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	uow := New[*doc](NewDB(), "doc")

	require.NoError(t, uow.Update(ctx, newDoc("ghost")))
	assert.ErrorContains(t, uow.SaveChanges(ctx, false).Err, "not found")

	require.NoError(t, uow.Delete(ctx, newDoc("ghost")))
	assert.ErrorContains(t, uow.SaveChanges(ctx, false).Err, "not found")
}

func TestTransactionRollbackRestoresState(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	uow := New[*doc](db, "doc")

	kept := newDoc("kept")
	require.NoError(t, uow.Insert(ctx, kept))
	require.True(t, uow.SaveChanges(ctx, true).OK)

	tx, err := uow.BeginTransaction(ctx)
	require.NoError(t, err)

	_, err = uow.BeginTransaction(ctx)
	assert.ErrorIs(t, err, ErrTxOpen)

	dropped := newDoc("dropped")
	require.NoError(t, uow.Insert(ctx, dropped))
	require.True(t, uow.SaveChanges(ctx, true).OK)

	_, found, _ := uow.Find(ctx, dropped.ID)
	assert.True(t, found, "reads inside the transaction see flushed changes")

	require.NoError(t, tx.Rollback(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), ErrTxDone)

	_, found, _ = uow.Find(ctx, dropped.ID)
	assert.False(t, found)
	_, found, _ = uow.Find(ctx, kept.ID)
	assert.True(t, found)

	history, err := db.History(ctx, "doc", dropped.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTransactionCommitKeepsChanges(t *testing.T) {
	ctx := context.Background()
	uow := New[*doc](NewDB(), "doc")

	tx, err := uow.BeginTransaction(ctx)
	require.NoError(t, err)
	d := newDoc("committed")
	require.NoError(t, uow.Insert(ctx, d))
	require.True(t, uow.SaveChanges(ctx, false).OK)
	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, tx.Rollback(ctx), ErrTxDone)

	_, found, _ := uow.Find(ctx, d.ID)
	assert.True(t, found)

	// the writer lock is released, a new transaction can start
	tx, err = uow.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
}

func TestListPaginatesAcrossKinds(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	docs := New[*doc](db, "doc")
	others := New[*doc](db, "other")

	for _, title := range []string{"c", "a", "b"} {
		require.NoError(t, docs.Insert(ctx, newDoc(title)))
	}
	require.NoError(t, others.Insert(ctx, newDoc("z")))
	require.True(t, docs.SaveChanges(ctx, false).OK)
	require.True(t, others.SaveChanges(ctx, false).OK)

	page, err := docs.List(ctx, store.ListQuery[*doc]{
		Less:     func(a, b *doc) bool { return a.Title < b.Title },
		PageSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a", page.Items[0].Title)
	assert.Equal(t, "b", page.Items[1].Title)
}

func TestHistoryAndPrune(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return clock }
	uow := New[*doc](db, "doc")

	d := newDoc("v1")
	require.NoError(t, uow.Insert(ctx, d))
	require.True(t, uow.SaveChanges(ctx, true).OK)

	clock = clock.Add(48 * time.Hour)
	d.Title = "v2"
	require.NoError(t, uow.Update(ctx, d))
	require.True(t, uow.SaveChanges(ctx, true).OK)

	history, err := db.History(ctx, "doc", d.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, store.ActionAdded, history[0].Action)
	assert.Equal(t, store.ActionModified, history[1].Action)
	assert.Contains(t, string(history[1].Snapshot), "v2")

	removed, err := db.PruneHistory(ctx, clock.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	history, _ = db.History(ctx, "doc", d.ID)
	require.Len(t, history, 1)
	assert.Equal(t, store.ActionModified, history[0].Action)
}

func TestRollbackKeepsPruneAppliedDuringTransaction(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return clock }
	docs := New[*doc](db, "doc")
	others := New[*doc](db, "other")

	old := newDoc("old")
	require.NoError(t, docs.Insert(ctx, old))
	require.True(t, docs.SaveChanges(ctx, true).OK)

	clock = clock.Add(48 * time.Hour)
	tx, err := others.BeginTransaction(ctx)
	require.NoError(t, err)

	pending := newDoc("pending")
	require.NoError(t, others.Insert(ctx, pending))
	require.True(t, others.SaveChanges(ctx, true).OK)

	removed, err := db.PruneHistory(ctx, clock.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	require.NoError(t, tx.Rollback(ctx))

	history, err := db.History(ctx, "doc", old.ID)
	require.NoError(t, err)
	assert.Empty(t, history, "rollback does not bring back pruned history")

	history, err = db.History(ctx, "other", pending.ID)
	require.NoError(t, err)
	assert.Empty(t, history, "history appended inside the transaction is discarded")

	_, found, _ := docs.Find(ctx, old.ID)
	assert.True(t, found, "rows of other kinds are untouched")
	_, found, _ = others.Find(ctx, pending.ID)
	assert.False(t, found)
}
