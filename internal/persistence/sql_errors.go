package persistence

import "strings"

// isUniqueViolation detects unique-constraint violations across the SQL
// backends without importing driver packages. modernc.org/sqlite reports
// "UNIQUE constraint failed"; PostgreSQL drivers surface SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value")
}
