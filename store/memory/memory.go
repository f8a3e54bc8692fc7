// Package memory is an in-process persistence unit. Entities are kept as
// JSON documents so callers never share memory with the stored state.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-mutation"
	"github.com/goliatone/go-mutation/store"
)

var (
	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("memory: transaction already committed or rolled back")
	// ErrTxOpen is returned when a unit of work begins a second transaction.
	ErrTxOpen = errors.New("memory: transaction already open")
)

// DB holds documents grouped by entity kind plus the history log. Writers
// are serialized: an open transaction blocks other writers until it ends.
type DB struct {
	txMu    sync.Mutex
	mu      sync.RWMutex
	tables  map[string]map[uuid.UUID][]byte
	history []store.HistoryEntry
	now     func() time.Time
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{
		tables: make(map[string]map[uuid.UUID][]byte),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// History returns the history recorded for one entity, oldest first.
func (db *DB) History(_ context.Context, kind string, id uuid.UUID) ([]store.HistoryEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []store.HistoryEntry
	for _, h := range db.history {
		if h.Kind == kind && h.EntityID == id {
			out = append(out, cloneHistory(h))
		}
	}
	return out, nil
}

// PruneHistory drops history entries recorded before the cutoff.
func (db *DB) PruneHistory(_ context.Context, before time.Time) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	kept := db.history[:0]
	removed := 0
	for _, h := range db.history {
		if h.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, h)
	}
	db.history = kept
	return removed, nil
}

// snapshot holds the rows of one kind as they were when a transaction began.
type snapshot struct {
	kind string
	rows map[uuid.UUID][]byte
}

func (db *DB) snapshot(kind string) snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rows := make(map[uuid.UUID][]byte, len(db.tables[kind]))
	for id, body := range db.tables[kind] {
		rows[id] = body
	}
	return snapshot{kind: kind, rows: rows}
}

// restore puts back the rows of the snapshot kind and drops the history
// entries in written. History removed by a prune meanwhile stays removed.
func (db *DB) restore(s snapshot, written map[uuid.UUID]struct{}) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables[s.kind] = s.rows
	if len(written) == 0 {
		return
	}
	kept := db.history[:0]
	for _, h := range db.history {
		if _, ok := written[h.ID]; !ok {
			kept = append(kept, h)
		}
	}
	db.history = kept
}

type change struct {
	action store.ChangeAction
	id     uuid.UUID
	body   []byte
}

// UnitOfWork is a per-request persistence unit for one entity kind. It is
// not safe for concurrent use.
type UnitOfWork[E mutation.Entity] struct {
	db      *DB
	kind    string
	pending []change
	tx      *transaction
}

var (
	_ store.UnitOfWork[mutation.Identity] = (*UnitOfWork[mutation.Identity])(nil)
	_ store.HistoryStore                  = (*DB)(nil)
)

// New creates a unit of work bound to db and kind.
func New[E mutation.Entity](db *DB, kind string) *UnitOfWork[E] {
	return &UnitOfWork[E]{db: db, kind: strings.TrimSpace(kind)}
}

// BeginTransaction snapshots the rows of this kind. Rollback restores them
// and drops the history entries the transaction appended.
// The write lock is held until Commit or Rollback, so the same goroutine must
// not write through another unit of work on this DB meanwhile.
func (u *UnitOfWork[E]) BeginTransaction(_ context.Context) (store.Transaction, error) {
	if u.db == nil {
		return nil, errors.New("memory: database not configured")
	}
	if u.tx != nil {
		return nil, ErrTxOpen
	}
	u.db.txMu.Lock()
	u.tx = &transaction{
		db:      u.db,
		snap:    u.db.snapshot(u.kind),
		written: make(map[uuid.UUID]struct{}),
		release: func() {
			u.tx = nil
			u.pending = nil
			u.db.txMu.Unlock()
		},
	}
	return u.tx, nil
}

func (u *UnitOfWork[E]) Find(_ context.Context, id uuid.UUID) (E, bool, error) {
	var zero E
	u.db.mu.RLock()
	body, ok := u.db.tables[u.kind][id]
	u.db.mu.RUnlock()
	if !ok {
		return zero, false, nil
	}
	entity, err := decode[E](body)
	if err != nil {
		return zero, false, err
	}
	return entity, true, nil
}

func (u *UnitOfWork[E]) List(_ context.Context, q store.ListQuery[E]) (store.Page[E], error) {
	u.db.mu.RLock()
	rows := u.db.tables[u.kind]
	ids := make([]uuid.UUID, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	bodies := make([][]byte, 0, len(ids))
	for _, id := range ids {
		bodies = append(bodies, rows[id])
	}
	u.db.mu.RUnlock()

	items := make([]E, 0, len(bodies))
	for _, body := range bodies {
		entity, err := decode[E](body)
		if err != nil {
			return store.Page[E]{}, err
		}
		items = append(items, entity)
	}
	return store.Paginate(items, q), nil
}

func (u *UnitOfWork[E]) Insert(_ context.Context, entity E) error {
	return u.queue(store.ActionAdded, entity)
}

func (u *UnitOfWork[E]) Update(_ context.Context, entity E) error {
	return u.queue(store.ActionModified, entity)
}

func (u *UnitOfWork[E]) Delete(_ context.Context, entity E) error {
	return u.queue(store.ActionDeleted, entity)
}

func (u *UnitOfWork[E]) queue(action store.ChangeAction, entity E) error {
	if mutation.IsNil(entity) {
		return fmt.Errorf("memory: cannot %s nil entity", action)
	}
	id := entity.GetID()
	if id == uuid.Nil {
		return fmt.Errorf("memory: entity has no identifier")
	}
	body, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("memory: encode entity: %w", err)
	}
	u.pending = append(u.pending, change{action: action, id: id, body: body})
	return nil
}

// SaveChanges applies every queued change or none of them.
func (u *UnitOfWork[E]) SaveChanges(_ context.Context, trackHistory bool) store.SaveResult {
	pending := u.pending
	u.pending = nil
	if len(pending) == 0 {
		return store.Saved()
	}

	if u.tx == nil {
		u.db.txMu.Lock()
		defer u.db.txMu.Unlock()
	}

	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	rows := make(map[uuid.UUID][]byte, len(u.db.tables[u.kind]))
	for id, body := range u.db.tables[u.kind] {
		rows[id] = body
	}
	var history []store.HistoryEntry
	now := u.db.now()
	for _, c := range pending {
		_, exists := rows[c.id]
		switch c.action {
		case store.ActionAdded:
			if exists {
				return store.SaveFailed(fmt.Errorf("memory: %s %s already exists", u.kind, c.id))
			}
			rows[c.id] = c.body
		case store.ActionModified:
			if !exists {
				return store.SaveFailed(fmt.Errorf("memory: %s %s not found", u.kind, c.id))
			}
			rows[c.id] = c.body
		case store.ActionDeleted:
			if !exists {
				return store.SaveFailed(fmt.Errorf("memory: %s %s not found", u.kind, c.id))
			}
			delete(rows, c.id)
		}
		if trackHistory {
			history = append(history, store.HistoryEntry{
				ID:        uuid.New(),
				Kind:      u.kind,
				EntityID:  c.id,
				Action:    c.action,
				Snapshot:  c.body,
				CreatedAt: now,
			})
		}
	}

	u.db.tables[u.kind] = rows
	u.db.history = append(u.db.history, history...)
	if u.tx != nil {
		for _, h := range history {
			u.tx.written[h.ID] = struct{}{}
		}
	}
	return store.Saved()
}

type transaction struct {
	db      *DB
	snap    snapshot
	written map[uuid.UUID]struct{}
	release func()
	done    bool
}

func (t *transaction) Commit(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.release()
	return nil
}

func (t *transaction) Rollback(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.db.restore(t.snap, t.written)
	t.release()
	return nil
}

func decode[E any](body []byte) (E, error) {
	var entity E
	if err := json.Unmarshal(body, &entity); err != nil {
		return entity, fmt.Errorf("memory: decode entity: %w", err)
	}
	return entity, nil
}

func cloneHistory(h store.HistoryEntry) store.HistoryEntry {
	h.Snapshot = append([]byte(nil), h.Snapshot...)
	return h
}
