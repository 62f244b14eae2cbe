package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// pqErrCode extracts the PostgreSQL SQLSTATE code from err, or "" if
// err is not a *pq.Error. Used to distinguish a unique-constraint
// violation (23505) — the SessionRun and rank-history idempotency gates — from
// any other write failure.
func pqErrCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
