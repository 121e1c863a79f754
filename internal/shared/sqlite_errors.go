// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteCode returns the primary result code of a driver error, or 0 when
// err does not come from the SQLite driver.
func SQLiteCode(err error) int {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return 0
	}
	// Extended codes carry the primary code in the low byte.
	return se.Code() & 0xff
}

// IsSQLiteConflictError reports lock contention: SQLITE_BUSY or
// SQLITE_LOCKED. Such errors are transient and the caller may retry.
// Errors that lost their driver type are matched on the message.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	switch SQLiteCode(err) {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	case 0:
		msg := err.Error()
		return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
	default:
		return false
	}
}
