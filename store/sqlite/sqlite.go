// Package sqlite persists entities as JSON documents in SQLite using the
// pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/goliatone/go-mutation"
	"github.com/goliatone/go-mutation/store"
)

const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the sql handle shared by every unit of work.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.HistoryStore = (*DB)(nil)

// connectionPragmas are passed through the DSN so the driver applies them to
// every pooled connection, not only the first one.
var connectionPragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

// Open opens (or creates) the database at dsn and ensures the schema. An
// in-memory database is pinned to a single connection.
func Open(dsn string) (*DB, error) {
	memory := isMemoryDSN(dsn)
	if !memory {
		dsn = withPragmas(dsn)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}

	wrapped, err := NewDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return wrapped, nil
}

// NewDB wraps an existing handle and ensures the schema.
func NewDB(db *sql.DB) (*DB, error) {
	if db == nil {
		return nil, errors.New("sqlite: db not configured")
	}
	d := &DB{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := d.initSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (kind, id)
		)`,
		`CREATE TABLE IF NOT EXISTS entity_history (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			action TEXT NOT NULL,
			snapshot TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_history_entity ON entity_history(kind, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_history_created ON entity_history(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// History returns the history recorded for one entity, oldest first.
func (d *DB) History(ctx context.Context, kind string, id uuid.UUID) ([]store.HistoryEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, kind, entity_id, action, snapshot, created_at FROM entity_history
		WHERE kind = ? AND entity_id = ? ORDER BY created_at, rowid`,
		kind, id.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.HistoryEntry
	for rows.Next() {
		var (
			entry     store.HistoryEntry
			rowID     string
			entityID  string
			action    string
			snapshot  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&rowID, &entry.Kind, &entityID, &action, &snapshot, &createdAt); err != nil {
			return nil, err
		}
		entry.ID, _ = uuid.Parse(rowID)
		entry.EntityID, _ = uuid.Parse(entityID)
		entry.Action = store.ChangeAction(action)
		if snapshot.Valid {
			entry.Snapshot = []byte(snapshot.String)
		}
		if ts, err := time.Parse(timestampLayout, createdAt); err == nil {
			entry.CreatedAt = ts
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// PruneHistory deletes history rows recorded before the cutoff.
func (d *DB) PruneHistory(ctx context.Context, before time.Time) (int, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM entity_history WHERE created_at < ?`,
		formatTimestamp(before),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type sqlExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
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
	tx      *sql.Tx
}

var _ store.UnitOfWork[mutation.Identity] = (*UnitOfWork[mutation.Identity])(nil)

// New creates a unit of work bound to db and kind.
func New[E mutation.Entity](db *DB, kind string) *UnitOfWork[E] {
	return &UnitOfWork[E]{db: db, kind: strings.TrimSpace(kind)}
}

func (u *UnitOfWork[E]) conn() sqlExecQuerier {
	if u.tx != nil {
		return u.tx
	}
	return u.db.db
}

// BeginTransaction opens a database transaction. Reads and SaveChanges run
// inside it until Commit or Rollback.
func (u *UnitOfWork[E]) BeginTransaction(ctx context.Context) (store.Transaction, error) {
	if u.db == nil {
		return nil, errors.New("sqlite: database not configured")
	}
	if u.tx != nil {
		return nil, errors.New("sqlite: transaction already open")
	}
	tx, err := u.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	u.tx = tx
	return &transaction{tx: tx, release: func() {
		u.tx = nil
		u.pending = nil
	}}, nil
}

func (u *UnitOfWork[E]) Find(ctx context.Context, id uuid.UUID) (E, bool, error) {
	var zero E
	var body string
	err := u.conn().QueryRowContext(ctx,
		`SELECT body FROM entities WHERE kind = ? AND id = ?`,
		u.kind, id.String(),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	entity, err := decode[E]([]byte(body))
	if err != nil {
		return zero, false, err
	}
	return entity, true, nil
}

func (u *UnitOfWork[E]) List(ctx context.Context, q store.ListQuery[E]) (store.Page[E], error) {
	rows, err := u.conn().QueryContext(ctx,
		`SELECT body FROM entities WHERE kind = ? ORDER BY created_at, id`,
		u.kind,
	)
	if err != nil {
		return store.Page[E]{}, err
	}
	defer rows.Close()

	var items []E
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return store.Page[E]{}, err
		}
		entity, err := decode[E]([]byte(body))
		if err != nil {
			return store.Page[E]{}, err
		}
		items = append(items, entity)
	}
	if err := rows.Err(); err != nil {
		return store.Page[E]{}, err
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
		return fmt.Errorf("sqlite: cannot %s nil entity", action)
	}
	id := entity.GetID()
	if id == uuid.Nil {
		return errors.New("sqlite: entity has no identifier")
	}
	body, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("sqlite: encode entity: %w", err)
	}
	u.pending = append(u.pending, change{action: action, id: id, body: body})
	return nil
}

// SaveChanges flushes queued changes atomically. Inside an open transaction
// a savepoint isolates the flush so a failure leaves earlier work intact.
func (u *UnitOfWork[E]) SaveChanges(ctx context.Context, trackHistory bool) store.SaveResult {
	pending := u.pending
	u.pending = nil
	if len(pending) == 0 {
		return store.Saved()
	}

	if u.tx != nil {
		if _, err := u.tx.ExecContext(ctx, `SAVEPOINT save_changes`); err != nil {
			return store.SaveFailed(err)
		}
		if err := u.apply(ctx, u.tx, pending, trackHistory); err != nil {
			_, _ = u.tx.ExecContext(ctx, `ROLLBACK TO save_changes`)
			_, _ = u.tx.ExecContext(ctx, `RELEASE save_changes`)
			return store.SaveFailed(err)
		}
		if _, err := u.tx.ExecContext(ctx, `RELEASE save_changes`); err != nil {
			return store.SaveFailed(err)
		}
		return store.Saved()
	}

	tx, err := u.db.db.BeginTx(ctx, nil)
	if err != nil {
		return store.SaveFailed(err)
	}
	if err := u.apply(ctx, tx, pending, trackHistory); err != nil {
		_ = tx.Rollback()
		return store.SaveFailed(err)
	}
	if err := tx.Commit(); err != nil {
		return store.SaveFailed(err)
	}
	return store.Saved()
}

func (u *UnitOfWork[E]) apply(ctx context.Context, exec sqlExecQuerier, pending []change, trackHistory bool) error {
	now := formatTimestamp(u.db.now())
	for _, c := range pending {
		var (
			res sql.Result
			err error
		)
		switch c.action {
		case store.ActionAdded:
			res, err = exec.ExecContext(ctx,
				`INSERT INTO entities (kind, id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
				u.kind, c.id.String(), string(c.body), now, now,
			)
		case store.ActionModified:
			res, err = exec.ExecContext(ctx,
				`UPDATE entities SET body = ?, updated_at = ? WHERE kind = ? AND id = ?`,
				string(c.body), now, u.kind, c.id.String(),
			)
		case store.ActionDeleted:
			res, err = exec.ExecContext(ctx,
				`DELETE FROM entities WHERE kind = ? AND id = ?`,
				u.kind, c.id.String(),
			)
		}
		if err != nil {
			return fmt.Errorf("sqlite: %s %s %s: %w", c.action, u.kind, c.id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("sqlite: %s %s not found", u.kind, c.id)
		}

		if !trackHistory {
			continue
		}
		if _, err := exec.ExecContext(ctx,
			`INSERT INTO entity_history (id, kind, entity_id, action, snapshot, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), u.kind, c.id.String(), string(c.action), string(c.body), now,
		); err != nil {
			return fmt.Errorf("sqlite: record history: %w", err)
		}
	}
	return nil
}

type transaction struct {
	tx      *sql.Tx
	release func()
}

func (t *transaction) Commit(_ context.Context) error {
	defer t.release()
	return t.tx.Commit()
}

func (t *transaction) Rollback(_ context.Context) error {
	defer t.release()
	return t.tx.Rollback()
}

func decode[E any](body []byte) (E, error) {
	var entity E
	if err := json.Unmarshal(body, &entity); err != nil {
		return entity, fmt.Errorf("sqlite: decode entity: %w", err)
	}
	return entity, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// withPragmas appends every connection pragma the dsn does not set itself.
func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, pragma := range connectionPragmas {
		name := pragma[:strings.IndexByte(pragma, '(')]
		if strings.Contains(dsn, "_pragma="+name) {
			continue
		}
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(pragma)
		sep = "&"
	}
	return b.String()
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}
