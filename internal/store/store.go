// Package store persists measurement records in a table store.
// DynamoDB is the production backend; SQLite (via GORM) serves hosts without
// AWS access and local development.
package store

import (
	"context"
	"errors"

	"github.com/vesaa/speedtest2dynamodb/internal/models"
)

// DefaultTableName is the table every backend writes to unless configured.
const DefaultTableName = "speedtestresults"

var (
	// ErrRetriesExhausted is returned by Writer.Write when every attempt failed.
	ErrRetriesExhausted = errors.New("write retries exhausted")
	// ErrUnknownDriver is returned by Open for an unsupported store_driver.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Store is a table of measurement records.
type Store interface {
	// EnsureTable creates the table when it does not exist yet and blocks
	// until it accepts writes.
	EnsureTable(ctx context.Context) error
	// Put inserts one record.
	Put(ctx context.Context, m models.Measurement) error
	// Scan returns every record in the table.
	Scan(ctx context.Context) ([]models.Measurement, error)
	Close() error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
