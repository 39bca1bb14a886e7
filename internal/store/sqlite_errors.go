package store

import "strings"

// modernc.org/sqlite surfaces engine errors as formatted strings, so
// classification is by message content.

// isConstraintError reports whether err is a SQLite constraint violation,
// typically a primary key collision on insert.
func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_CONSTRAINT") || strings.Contains(msg, "constraint failed")
}

// IsBusyError reports whether err is a SQLite concurrency error
// (SQLITE_BUSY or "database is locked"). These warrant a retry.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
