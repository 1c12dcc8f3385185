package store

import (
	"errors"
	"strings"
)

// Kind classifies store failures for callers that branch on failure cause.
type Kind string

const (
	KindUnavailable       Kind = "unavailable"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindPartitionNotFound Kind = "partition_not_found"
	KindValidation        Kind = "validation"
	KindUnknown           Kind = "unknown"
)

var (
	// ErrUnavailable indicates the underlying database could not be opened or reached.
	ErrUnavailable = errors.New("store unavailable")
	// ErrQuotaExceeded indicates persistent capacity is exhausted.
	ErrQuotaExceeded = errors.New("store quota exceeded")
	// ErrPartitionNotFound indicates a referenced partition does not exist.
	ErrPartitionNotFound = errors.New("partition not found")
	// ErrValidation indicates a value or key failed a storage-level check.
	ErrValidation = errors.New("store validation failed")
	// ErrTxDone indicates use of a transaction after commit or abort.
	ErrTxDone = errors.New("transaction already finished")
	// ErrReadOnly indicates a write was queued against a read-only transaction.
	ErrReadOnly = errors.New("transaction is read-only")
)

// Classify maps an error returned by this package to its failure kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrPartitionNotFound):
		return KindPartitionNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrReadOnly):
		return KindValidation
	default:
		return KindUnknown
	}
}

// SQLite primary result codes the store branches on.
const (
	sqliteBusyCode       = 5
	sqliteFullCode       = 13
	sqliteConstraintCode = 19
)

func sqliteCode(err error) (int, bool) {
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return coder.Code(), true
	}
	return 0, false
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok && code%256 == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isSQLiteFull(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok && code%256 == sqliteFullCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_FULL") || strings.Contains(msg, "database or disk is full")
}

func isSQLiteConstraint(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok && code%256 == sqliteConstraintCode {
		return true
	}
	return strings.Contains(err.Error(), "constraint")
}
