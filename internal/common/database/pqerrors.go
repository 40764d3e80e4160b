package database

import (
	"context"
	"errors"

	"github.com/lib/pq"
)

// SQLSTATE codes the assignment transaction reacts to.
const (
	CodeUniqueViolation      = "23505"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeLockNotAvailable     = "55P03"
	CodeQueryCanceled        = "57014"
)

// SQLState returns the SQLSTATE of a lib/pq error anywhere in err's chain.
func SQLState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return SQLState(err) == CodeUniqueViolation
}

// ConstraintName returns the violated constraint, if any.
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// IsContention reports errors caused by competing transactions: serialization
// failures, deadlocks and lock_timeout. query_canceled counts only while ctx is
// still live, meaning statement_timeout fired rather than the caller giving up.
func IsContention(ctx context.Context, err error) bool {
	switch SQLState(err) {
	case CodeSerializationFailure, CodeDeadlockDetected, CodeLockNotAvailable:
		return true
	case CodeQueryCanceled:
		return ctx.Err() == nil
	}
	return false
}
