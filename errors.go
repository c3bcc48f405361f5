package tradebook

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by a Repository when no transaction (or version)
// matches the lookup.
var ErrNotFound = errors.New("transaction not found")

// ErrLocked is returned by a Locker when a key is already held.
var ErrLocked = errors.New("transaction locked")

// ValidationError reports a malformed entity field. It is always the caller's
// fault and must not be retried.
type ValidationError struct {
	AssetManagerID int64
	TransactionID  string
	Field          string
	Reason         string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction %d/%s: %s %s", e.AssetManagerID, e.TransactionID, e.Field, e.Reason)
}

// InvalidTransitionError reports a lifecycle event that the transaction's
// current status does not accept.
type InvalidTransitionError struct {
	AssetManagerID int64
	TransactionID  string
	From           Status
	Event          Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transaction %d/%s: cannot %s from status %s", e.AssetManagerID, e.TransactionID, e.Event, e.From)
}

// VersionConflictError reports a lost race: the stored version is not the one
// the caller read. Re-read and retry.
type VersionConflictError struct {
	AssetManagerID int64
	TransactionID  string
	Expected       int
	Actual         int
	Locked         bool // Locked is set when another writer holds the transaction's lock.
}

func (e *VersionConflictError) Error() string {
	if e.Locked {
		return fmt.Sprintf("transaction %d/%s: version conflict, locked by a concurrent writer", e.AssetManagerID, e.TransactionID)
	}
	return fmt.Sprintf("transaction %d/%s: version conflict, expected %d, found %d", e.AssetManagerID, e.TransactionID, e.Expected, e.Actual)
}

// NettingError reports a violated netting precondition.
type NettingError struct {
	AssetManagerID int64
	TransactionIDs []string
	Reason         string
	Err            error
}

func (e *NettingError) Error() string {
	msg := fmt.Sprintf("cannot net %d/[%s]: %s", e.AssetManagerID, strings.Join(e.TransactionIDs, ","), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NettingError) Unwrap() error { return e.Err }

// AllocationError reports a violated allocation precondition, including a
// failed conservation check.
type AllocationError struct {
	AssetManagerID int64
	TransactionID  string
	Reason         string
	Err            error
}

func (e *AllocationError) Error() string {
	msg := fmt.Sprintf("cannot allocate %d/%s: %s", e.AssetManagerID, e.TransactionID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AllocationError) Unwrap() error { return e.Err }

// RepositoryTimeoutError reports that the repository did not answer in time.
// It is retryable with backoff by the caller.
type RepositoryTimeoutError struct {
	AssetManagerID int64
	Op             string
	Err            error
}

func (e *RepositoryTimeoutError) Error() string {
	return fmt.Sprintf("repository %s for %d timed out: %v", e.Op, e.AssetManagerID, e.Err)
}

func (e *RepositoryTimeoutError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a lost race or a repository timeout.
func IsRetryable(err error) bool {
	var conflict *VersionConflictError
	var timeout *RepositoryTimeoutError
	return errors.As(err, &conflict) || errors.As(err, &timeout)
}

// repositoryError turns a deadline into a RepositoryTimeoutError, leaving any
// other error untouched.
func repositoryError(tenant int64, op string, err error) error {
	if err == nil {
		return nil
	}
	var timeout *RepositoryTimeoutError
	if errors.As(err, &timeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RepositoryTimeoutError{AssetManagerID: tenant, Op: op, Err: err}
	}
	return err
}
