package postgres

import (
	"github.com/lib/pq"

	"github.com/kellnr/kellnr/pkg/regerr"
)

// pqUniqueViolation is postgres's SQLSTATE for a unique_violation.
const pqUniqueViolation = "23505"

// translateWriteErr maps a raw driver error from a write statement into
// the registry's error taxonomy. Unique-constraint violations become
// regerr.Duplicate; everything else is regerr.Storage. Never surface a
// raw *pq.Error to a caller.
func translateWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		return regerr.Duplicate(op, err)
	}
	return regerr.Storage(op, err)
}
