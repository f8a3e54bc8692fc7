// Package store declares the persistence unit consumed by the mutation
// pipeline and ships memory and sqlite implementations in subpackages.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-mutation"
)

// Transaction is an open persistence transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SaveResult reports the outcome of flushing pending changes.
type SaveResult struct {
	OK  bool
	Err error
}

// Saved is a successful SaveResult.
func Saved() SaveResult { return SaveResult{OK: true} }

// SaveFailed wraps err in a failed SaveResult.
func SaveFailed(err error) SaveResult { return SaveResult{Err: err} }

// ListQuery selects a page of entities.
type ListQuery[E any] struct {
	Filter    func(E) bool
	Less      func(a, b E) bool
	PageIndex int
	PageSize  int
}

// Page is one page of a listing.
type Page[E any] struct {
	Items      []E
	PageIndex  int
	PageSize   int
	TotalCount int
	TotalPages int
}

// Reader is the read side of a persistence unit.
type Reader[E mutation.Entity] interface {
	Find(ctx context.Context, id uuid.UUID) (E, bool, error)
	List(ctx context.Context, q ListQuery[E]) (Page[E], error)
}

// UnitOfWork queues changes for one entity kind and flushes them on SaveChanges.
type UnitOfWork[E mutation.Entity] interface {
	Reader[E]
	BeginTransaction(ctx context.Context) (Transaction, error)
	Insert(ctx context.Context, entity E) error
	Update(ctx context.Context, entity E) error
	Delete(ctx context.Context, entity E) error
	SaveChanges(ctx context.Context, trackHistory bool) SaveResult
}

// ChangeAction is the kind of change recorded in history.
type ChangeAction string

const (
	ActionAdded    ChangeAction = "added"
	ActionModified ChangeAction = "modified"
	ActionDeleted  ChangeAction = "deleted"
)

// HistoryEntry is one auto-history record.
type HistoryEntry struct {
	ID        uuid.UUID
	Kind      string
	EntityID  uuid.UUID
	Action    ChangeAction
	Snapshot  []byte
	CreatedAt time.Time
}

// HistoryStore exposes recorded history.
type HistoryStore interface {
	History(ctx context.Context, kind string, id uuid.UUID) ([]HistoryEntry, error)
	PruneHistory(ctx context.Context, before time.Time) (int, error)
}

// Paginate applies q to items already loaded in memory.
func Paginate[E any](items []E, q ListQuery[E]) Page[E] {
	filtered := items
	if q.Filter != nil {
		filtered = make([]E, 0, len(items))
		for _, item := range items {
			if q.Filter(item) {
				filtered = append(filtered, item)
			}
		}
	}
	if q.Less != nil {
		if q.Filter == nil {
			filtered = append([]E(nil), items...)
		}
		sort.SliceStable(filtered, func(i, j int) bool {
			return q.Less(filtered[i], filtered[j])
		})
	}

	size := q.PageSize
	if size <= 0 {
		size = len(filtered)
		if size == 0 {
			size = 1
		}
	}
	index := q.PageIndex
	if index < 0 {
		index = 0
	}

	total := len(filtered)
	pages := (total + size - 1) / size
	page := Page[E]{
		PageIndex:  index,
		PageSize:   size,
		TotalCount: total,
		TotalPages: pages,
	}
	start := index * size
	if start >= total {
		page.Items = []E{}
		return page
	}
	end := start + size
	if end > total {
		end = total
	}
	page.Items = append([]E(nil), filtered[start:end]...)
	return page
}
