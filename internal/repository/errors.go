package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a requested row does not exist.  Handlers
// translate it into 404 or 400 depending on the route's contract.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with a uniqueness
// constraint, e.g. two first-time lock attempts racing for the same seat
// coordinate.  The loser of such a race must fail cleanly rather than
// corrupt state.
var ErrDuplicate = errors.New("duplicate row")

// isDuplicateKey reports whether err is the MySQL duplicate-entry error
// (1062) raised by a violated unique index.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
