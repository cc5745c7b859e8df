package repository

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code raised when a UNIQUE
// constraint rejects a write. The composite keys on results and
// attendances are the only defense against duplicate-insert races, so
// callers need to tell this apart from other write failures.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a uniqueness-constraint error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

func normalizePage(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}
