// ABOUTME: SQLite implementation of the remote table store using modernc.org/sqlite
// ABOUTME: Provides per-user collection persistence with a committed-change feed

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/remote"
)

// Ensure SQLiteStore implements remote.Store.
var _ remote.Store = (*SQLiteStore)(nil)

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const columns = `id, user_id, title, description, status, priority, due_date, project_id, area_id,
	goal_id, reason, original_id, original_type, extra, created_at, updated_at`

// SQLiteStore implements remote.Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	hub    *Hub
	now    func() time.Time

	// writeMu serializes commit+publish so the change feed order matches
	// commit order.
	writeMu      sync.Mutex
	suppressEcho bool
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		hub:    NewHub(logger),
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates one table per collection. All collections share the
// same column set; type-specific columns live in the extra JSON column.
func (s *SQLiteStore) createSchema() error {
	for _, c := range entity.Collections {
		schema := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				id            TEXT PRIMARY KEY,
				user_id       TEXT NOT NULL,
				title         TEXT NOT NULL,
				description   TEXT NOT NULL DEFAULT '',
				status        TEXT NOT NULL DEFAULT '',
				priority      TEXT NOT NULL DEFAULT '',
				due_date      TEXT,
				project_id    TEXT,
				area_id       TEXT,
				goal_id       TEXT,
				reason        TEXT,
				original_id   TEXT,
				original_type TEXT,
				extra         TEXT,
				created_at    TEXT NOT NULL,
				updated_at    TEXT NOT NULL,

				CHECK (length(user_id) > 0),
				CHECK (length(title) > 0)
			);

			CREATE INDEX IF NOT EXISTS idx_%[1]s_user_created ON %[1]s(user_id, created_at DESC);
		`, c)
		if _, err := s.db.Exec(schema); err != nil {
			return fmt.Errorf("creating %s table: %w", c, err)
		}
	}
	return nil
}

// SetSuppressEcho controls whether a writer's own subscriptions receive the
// change events for its writes.
func (s *SQLiteStore) SetSuppressEcho(v bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.suppressEcho = v
}

// Hub exposes the change hub, mainly so tests can simulate disconnects.
func (s *SQLiteStore) Hub() *Hub {
	return s.hub
}

// Close releases the database and ends all subscriptions.
func (s *SQLiteStore) Close() error {
	s.hub.Close()
	return s.db.Close()
}

// FetchCollection returns the user's rows, newest first.
func (s *SQLiteStore) FetchCollection(ctx context.Context, c entity.Collection, userID string) ([]*entity.Entity, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown collection %q", c)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM `+string(c)+` WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, remote.Classify("fetch", c, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, remote.Classify("fetch", c, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, remote.Classify("fetch", c, err)
	}
	return out, nil
}

// Get retrieves one of the user's rows by ID.
func (s *SQLiteStore) Get(ctx context.Context, c entity.Collection, userID, id string) (*entity.Entity, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	e, err := s.get(ctx, s.db, c, userID, id)
	if err != nil {
		return nil, remote.Classify("get", c, err)
	}
	return e, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) get(ctx context.Context, q queryer, c entity.Collection, userID, id string) (*entity.Entity, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+columns+` FROM `+string(c)+` WHERE id = ? AND user_id = ?`, id, userID)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", c.Type(), id, remote.ErrNotFound)
	}
	return e, err
}

// Mutate applies an insert, update or delete scoped to m.UserID and
// publishes the committed change.
func (s *SQLiteStore) Mutate(ctx context.Context, m remote.Mutation) (*entity.Entity, error) {
	if !m.Collection.Valid() {
		return nil, &remote.RejectedMutationError{Op: m.Op, Collection: m.Collection, Reason: "unknown collection"}
	}
	if m.UserID == "" {
		return nil, &remote.RejectedMutationError{Op: m.Op, Collection: m.Collection, Reason: "missing user"}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		ev  remote.ChangeEvent
		out *entity.Entity
		err error
	)
	switch m.Op {
	case remote.OpInsert:
		out, err = s.insert(ctx, m)
		ev = remote.ChangeEvent{Collection: m.Collection, Type: remote.ChangeInsert, New: out}
	case remote.OpUpdate:
		var old *entity.Entity
		old, out, err = s.update(ctx, m)
		ev = remote.ChangeEvent{Collection: m.Collection, Type: remote.ChangeUpdate, New: out, Old: old}
	case remote.OpDelete:
		out, err = s.delete(ctx, m)
		ev = remote.ChangeEvent{Collection: m.Collection, Type: remote.ChangeDelete, Old: out}
	default:
		return nil, &remote.RejectedMutationError{Op: m.Op, Collection: m.Collection, Reason: "unknown op"}
	}
	if err != nil {
		return nil, s.classifyWrite(m, err)
	}

	s.hub.Publish(m.UserID, m.Origin, s.suppressEcho, ev)
	return out.Clone(), nil
}

func (s *SQLiteStore) classifyWrite(m remote.Mutation, err error) error {
	if strings.Contains(err.Error(), "constraint") {
		return &remote.RejectedMutationError{Op: m.Op, Collection: m.Collection, Reason: err.Error(), Err: err}
	}
	return remote.Classify(string(m.Op), m.Collection, err)
}

func (s *SQLiteStore) insert(ctx context.Context, m remote.Mutation) (*entity.Entity, error) {
	if m.Row == nil {
		return nil, &remote.RejectedMutationError{Op: m.Op, Collection: m.Collection, Reason: "missing row"}
	}
	e := m.Row.Clone()
	e.UserID = m.UserID
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	args, err := entityArgs(e)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+string(m.Collection)+` (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLiteStore) update(ctx context.Context, m remote.Mutation) (*entity.Entity, *entity.Entity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	old, err := s.get(ctx, tx, m.Collection, m.UserID, m.ID)
	if err != nil {
		return nil, nil, err
	}
	next, err := old.WithPatch(m.Patch)
	if err != nil {
		return nil, nil, &remote.RejectedMutationError{Op: m.Op, Collection: m.Collection, Reason: err.Error(), Err: err}
	}
	next.UpdatedAt = s.now()

	args, err := entityArgs(next)
	if err != nil {
		return nil, nil, err
	}
	// id, user_id and created_at never change
	setArgs := append([]any{}, args[2:14]...)
	setArgs = append(setArgs, args[15], next.ID, m.UserID)
	_, err = tx.ExecContext(ctx, `
		UPDATE `+string(m.Collection)+` SET
			title = ?, description = ?, status = ?, priority = ?, due_date = ?, project_id = ?,
			area_id = ?, goal_id = ?, reason = ?, original_id = ?, original_type = ?, extra = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`, setArgs...)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return old, next, nil
}

func (s *SQLiteStore) delete(ctx context.Context, m remote.Mutation) (*entity.Entity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	old, err := s.get(ctx, tx, m.Collection, m.UserID, m.ID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+string(m.Collection)+` WHERE id = ? AND user_id = ?`, m.ID, m.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return old, nil
}

// Subscribe opens a change feed for one collection of one user.
func (s *SQLiteStore) Subscribe(ctx context.Context, f remote.Filter, h remote.Handler) (remote.Subscription, error) {
	if !f.Collection.Valid() {
		return nil, fmt.Errorf("unknown collection %q", f.Collection)
	}
	return s.hub.Subscribe(ctx, f, h)
}

// entityArgs returns column values in the order of columns.
func entityArgs(e *entity.Entity) ([]any, error) {
	var dueDate *string
	if e.DueDate != nil {
		d := e.DueDate.UTC().Format(time.RFC3339)
		dueDate = &d
	}
	var extra *string
	if len(e.Extra) > 0 {
		b, err := json.Marshal(e.Extra)
		if err != nil {
			return nil, fmt.Errorf("marshaling extra: %w", err)
		}
		str := string(b)
		extra = &str
	}
	return []any{
		e.ID, e.UserID, e.Title, e.Description, e.Status, e.Priority, dueDate,
		nullString(e.ProjectID), nullString(e.AreaID), nullString(e.GoalID),
		nullString(e.Reason), nullString(e.OriginalID), nullString(string(e.OriginalType)),
		extra, e.CreatedAt.UTC().Format(timeLayout), e.UpdatedAt.UTC().Format(timeLayout),
	}, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(r scanner) (*entity.Entity, error) {
	var (
		e                                     entity.Entity
		dueDate, projectID, areaID, goalID    sql.NullString
		reason, originalID, originalType, ext sql.NullString
		createdAt, updatedAt                  string
	)
	if err := r.Scan(&e.ID, &e.UserID, &e.Title, &e.Description, &e.Status, &e.Priority, &dueDate,
		&projectID, &areaID, &goalID, &reason, &originalID, &originalType, &ext,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	e.ProjectID = projectID.String
	e.AreaID = areaID.String
	e.GoalID = goalID.String
	e.Reason = reason.String
	e.OriginalID = originalID.String
	e.OriginalType = entity.Type(originalType.String)
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	e.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	if dueDate.Valid {
		d, _ := time.Parse(time.RFC3339, dueDate.String)
		e.DueDate = &d
	}
	if ext.Valid {
		_ = json.Unmarshal([]byte(ext.String), &e.Extra) // Best effort: invalid JSON leaves extra empty
	}
	return &e, nil
}
