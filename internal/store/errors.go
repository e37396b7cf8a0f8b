package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNoSnapshot is returned when a symbol has no snapshot at or after the
// requested time.
var ErrNoSnapshot = errors.New("no snapshot at or after requested time")

// ErrEndOfLog is returned by RawCursor.Next once the scan has passed the
// last captured record.
var ErrEndOfLog = errors.New("end of captured log")

// ErrorKind classifies a store failure for retry policy.
type ErrorKind int

const (
	// KindTransient covers failures worth retrying: lost connections, pool
	// exhaustion, deadlocks, serialization aborts.
	KindTransient ErrorKind = iota
	// KindPermanent covers failures a retry cannot fix: constraint
	// violations, malformed statements, missing tables.
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error wraps a database failure with the operation that hit it and its
// retry classification.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a store failure worth retrying.
func IsTransient(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindTransient
}

// classify wraps err for op, deciding retryability from the SQLSTATE when
// one is present. Failures without a SQLSTATE are connection or pool level
// and worth retrying.
func classify(op string, err error) *Error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if transientCode(pgErr.Code) {
			return &Error{Op: op, Kind: KindTransient, Err: err}
		}
		return &Error{Op: op, Kind: KindPermanent, Err: err}
	}
	return &Error{Op: op, Kind: KindTransient, Err: err}
}

func transientCode(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"): // connection exception
		return true
	case strings.HasPrefix(code, "53"): // insufficient resources
		return true
	case code == "40001" || code == "40P01": // serialization failure, deadlock
		return true
	case code == "57P03": // cannot_connect_now
		return true
	}
	return false
}
