package draft

import (
	"context"
	"fmt"
	"time"

	"github.com/mx-space/drafts/internal/models"
)

// Store is the sole reader and writer of draft rows.
//
// A missing draft is not an error: Load returns (nil, nil) and Discard does nothing.
// Every backend failure is returned as a *StorageError.
type Store interface {
	Load(ctx context.Context, id uint64) (*models.DraftModel, error)

	// Save inserts or replaces the draft keyed by d.ID and returns the id it was
	// stored under. An id of 0, or an id that no longer resolves to a draft owned by
	// d.OwnerID, gets a freshly allocated id. SavedAt is stamped by the store. The
	// caller's record is updated with the stored id and timestamps.
	Save(ctx context.Context, d *models.DraftModel) (uint64, error)

	Discard(ctx context.Context, id uint64, actingUserID string) error

	// ListByDocument returns the drafts of ref in creation order. An empty ref
	// selects drafts that have no document yet.
	ListByDocument(ctx context.Context, ref string) ([]models.DraftModel, error)
	ListByDocumentAndOwner(ctx context.Context, ref, ownerID string) ([]models.DraftModel, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.DraftModel, error)

	// Move retargets every draft of oldRef to newRef in one atomic step and reports
	// how many drafts moved.
	Move(ctx context.Context, oldRef, newRef string) (int64, error)

	Count(ctx context.Context, ref string) (int64, error)

	// PurgeSavedBefore deletes drafts whose last save is older than t.
	PurgeSavedBefore(ctx context.Context, t time.Time) (int64, error)
}

// StorageError is a failure of the underlying persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("draft store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// StoreOption configures a Store backend.
type StoreOption func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock replaces the clock used to stamp SavedAt and CreatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) { o.now = now }
}

func newStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// overwrite builds the row that replaces existing. Owner, creation time and a
// document ref that is already set are kept; SavedAt never moves backwards.
func overwrite(existing, incoming *models.DraftModel, now time.Time) *models.DraftModel {
	row := incoming.DeepCopy()
	row.ID = existing.ID
	row.OwnerID = existing.OwnerID
	row.CreatedAt = existing.CreatedAt
	if existing.DocumentRef != nil {
		row.DocumentRef = existing.DocumentRef
	}
	row.SavedAt = now
	if existing.SavedAt.After(now) {
		row.SavedAt = existing.SavedAt
	}
	return row
}

// fresh builds a new row for incoming; the backend assigns the id.
func fresh(incoming *models.DraftModel, now time.Time) *models.DraftModel {
	row := incoming.DeepCopy()
	row.ID = 0
	row.CreatedAt = now
	row.SavedAt = now
	return row
}

// stamp copies the stored identity back onto the caller's record.
func stamp(d, row *models.DraftModel) {
	d.ID = row.ID
	d.OwnerID = row.OwnerID
	d.DocumentRef = row.DocumentRef
	d.CreatedAt = row.CreatedAt
	d.SavedAt = row.SavedAt
}

func refPtr(ref string) *string {
	if ref == "" {
		return nil
	}
	return &ref
}
