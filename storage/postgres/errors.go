package postgres

import (
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("not found")

const UniqueViolationCode = pq.ErrorCode("23505")

// IsUniqueViolation reports whether err is a unique constraint violation.
// With a non-empty constraint it also has to be that constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != UniqueViolationCode {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
