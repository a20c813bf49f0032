package sessions

import (
	"context"

	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
)

// ErrSessionNotFound is returned by Get and Update when no record exists for an email
var ErrSessionNotFound = internalerrors.ErrSessionNotFound

// Store persists session records keyed by email. Implementations must not
// alias caller memory: records passed in or returned are copies.
type Store interface {
	Get(ctx context.Context, email string) (*Record, error)
	// Save creates or replaces the record
	Save(ctx context.Context, email string, record *Record) error
	// Update replaces an existing record, failing with ErrSessionNotFound when absent
	Update(ctx context.Context, email string, record *Record) error
	// Delete is idempotent
	Delete(ctx context.Context, email string) error
	Count(ctx context.Context) (int, error)
}
