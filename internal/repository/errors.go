package repository

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// Sentinel errors returned when a unique constraint rejects a write.
var (
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrDuplicatePhone   = errors.New("mobile number already registered")
	ErrDuplicateName    = errors.New("name already taken")
	ErrDuplicateProduct = errors.New("product name already listed")
)

const pqUniqueViolation = "23505"

// uniqueConstraint returns the violated constraint name when err is a
// Postgres unique violation.
func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// mapUserConflict converts a users unique violation into the matching sentinel.
func mapUserConflict(err error) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return nil
	}
	switch {
	case strings.Contains(constraint, "email"):
		return ErrDuplicateEmail
	case strings.Contains(constraint, "mobile"):
		return ErrDuplicatePhone
	}
	return nil
}
