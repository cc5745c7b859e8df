package service

import (
	"math"

	"github.com/srms-dev/srms-api/internal/repository"
)

// isUniqueViolation reports whether the database rejected a write on a
// UNIQUE constraint. Pre-insert existence checks cannot close the race
// window, so writers rely on the constraint and translate it here.
func isUniqueViolation(err error) bool {
	return repository.IsUniqueViolation(err)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
