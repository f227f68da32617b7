package database

import (
	"errors"

	"github.com/lib/pq"
)

// SQLSTATE codes the repositories translate into domain sentinels.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeCheckViolation      = "23514"
)

// ConstraintViolation unwraps err into the postgres error when it carries the given SQLSTATE code.
func ConstraintViolation(err error, code string) (*pq.Error, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil, false
	}
	if string(pqErr.Code) != code {
		return nil, false
	}
	return pqErr, true
}

// IsUniqueViolation reports whether err is a unique violation. When constraint names are given the
// violated constraint must be one of them.
func IsUniqueViolation(err error, constraints ...string) bool {
	return matches(err, CodeUniqueViolation, constraints)
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error, constraints ...string) bool {
	return matches(err, CodeForeignKeyViolation, constraints)
}

// IsCheckViolation reports whether err is a CHECK constraint violation.
func IsCheckViolation(err error, constraints ...string) bool {
	return matches(err, CodeCheckViolation, constraints)
}

func matches(err error, code string, constraints []string) bool {
	pqErr, ok := ConstraintViolation(err, code)
	if !ok {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, name := range constraints {
		if pqErr.Constraint == name {
			return true
		}
	}
	return false
}
