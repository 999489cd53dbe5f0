package store

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned, wrapped with the voucher number, when a voucher is
// not in the ledger.
var ErrNotFound = errors.New("voucher not found")

// IsNotFound reports whether err is a ledger lookup miss.
// Uses errors.Is to handle wrapped errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// SchemaError reports that a database carries a schema version other than
// the one the caller requires. It is not retryable for that database.
type SchemaError struct {
	Required int
	Actual   int
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("unexpected database schema version: required %d, got %d", e.Required, e.Actual)
}

// IsSchemaError returns true if err is a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// StoreOpenError reports a failure to create the private directory or to open
// and read the database file. Reason is the underlying error, typically an
// *fs.PathError or a sqlite3.Error.
type StoreOpenError struct {
	Reason error
}

// Error implements the error interface.
func (e *StoreOpenError) Error() string {
	return fmt.Sprintf("open store: %v", e.Reason)
}

// Unwrap exposes Reason to errors.Is and errors.As, so
// errors.Is(err, fs.ErrPermission) works on a *StoreOpenError.
func (e *StoreOpenError) Unwrap() error {
	return e.Reason
}

// Errno returns the operating system error number behind the failure, if
// there is one.
func (e *StoreOpenError) Errno() (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(e.Reason, &errno) {
		return errno, true
	}
	var sqliteErr sqlite3.Error
	if errors.As(e.Reason, &sqliteErr) && sqliteErr.SystemErrno != 0 {
		return sqliteErr.SystemErrno, true
	}
	return 0, false
}

// IsStoreOpenError returns true if err is a *StoreOpenError.
func IsStoreOpenError(err error) bool {
	var oe *StoreOpenError
	return errors.As(err, &oe)
}
