package repository

import (
	"github.com/lib/pq"
)

// uniqueViolationCode is the PostgreSQL SQLSTATE for a unique_violation.
const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == uniqueViolationCode
}

func pqIntArray(vals []int) interface{} {
	return pq.Array(vals)
}
