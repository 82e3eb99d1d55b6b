package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Audit action values written to action_logs.action.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// AuditMeta identifies who performed an audited mutation and where it
// belongs.  UserID is nil for system actions such as seeding.
type AuditMeta struct {
	UserID    *string
	Module    string
	Submodule string
}

// Audited is the create/update/delete contract of every audited
// repository.  Each method writes the record and its action_logs row in
// a single transaction: both land or neither does.
type Audited[T any] interface {
	CreateWithLog(ctx context.Context, v *T, meta AuditMeta) error
	UpdateWithLog(ctx context.Context, v *T, meta AuditMeta) error
	DeleteWithLog(ctx context.Context, id string, meta AuditMeta) (T, error)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn inside a transaction and commits when it returns nil.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// writeLog inserts the action_logs row for an audited mutation.  before
// and after are JSON encoded; a nil side is stored as NULL.
func writeLog(ctx context.Context, q execer, meta AuditMeta, action, recordID string, before, after any) error {
	b, err := snapshot(before)
	if err != nil {
		return err
	}
	a, err := snapshot(after)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO action_logs (id, user_id, module, submodule, action, record_id, before_json, after_json, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		uuid.NewString(), meta.UserID, meta.Module, meta.Submodule, action, recordID, b, a, time.Now().UTC())
	return err
}

func snapshot(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

// affectedOne turns a zero-row update into ErrNotFound.
func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
