// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios.  ErrNotFound replaces sql.ErrNoRows at the package boundary
// so callers never import database/sql just to compare errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation the
// data itself forbids, such as deleting the role they hold.  Handlers
// translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be performed
// because of conflicting state, such as deleting a role that is still
// assigned.  Handlers translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when a user or invite email is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrAlreadyRevoked is returned by conditional session updates that
// found the row already revoked.  It is how the loser of a concurrent
// refresh learns it lost.
var ErrAlreadyRevoked = errors.New("session already revoked")

// isDuplicate reports a MySQL unique key violation (error 1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
