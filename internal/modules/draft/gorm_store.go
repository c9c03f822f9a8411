package draft

import (
	"context"
	"errors"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mx-space/drafts/internal/models"
)

// MySQL error numbers for lock wait timeout and deadlock.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// GormStore persists drafts in the drafts table.
type GormStore struct {
	db   *gorm.DB
	opts storeOptions
}

func NewGormStore(db *gorm.DB, opts ...StoreOption) *GormStore {
	return &GormStore{db: db, opts: newStoreOptions(opts)}
}

func (s *GormStore) Load(ctx context.Context, id uint64) (*models.DraftModel, error) {
	var d models.DraftModel
	if err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("load", err)
	}
	return &d, nil
}

func (s *GormStore) Save(ctx context.Context, d *models.DraftModel) (uint64, error) {
	var row *models.DraftModel
	save := func(tx *gorm.DB) error {
		row = nil
		now := s.opts.now()
		if d.ID != 0 {
			var existing models.DraftModel
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ? AND owner_id = ?", d.ID, d.OwnerID).
				First(&existing).Error
			switch {
			case err == nil:
				row = overwrite(&existing, d, now)
				return tx.Save(row).Error
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}
		row = fresh(d, now)
		return tx.Create(row).Error
	}

	err := s.db.WithContext(ctx).Transaction(save)
	if isRetryable(err) {
		err = s.db.WithContext(ctx).Transaction(save)
	}
	if err != nil {
		return 0, storageErr("save", err)
	}
	stamp(d, row)
	return row.ID, nil
}

func (s *GormStore) Discard(ctx context.Context, id uint64, actingUserID string) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, actingUserID).
		Delete(&models.DraftModel{}).Error
	return storageErr("discard", err)
}

func (s *GormStore) ListByDocument(ctx context.Context, ref string) ([]models.DraftModel, error) {
	var items []models.DraftModel
	err := whereRef(s.db.WithContext(ctx), ref).Order("id ASC").Find(&items).Error
	if err != nil {
		return nil, storageErr("list by document", err)
	}
	return items, nil
}

func (s *GormStore) ListByDocumentAndOwner(ctx context.Context, ref, ownerID string) ([]models.DraftModel, error) {
	var items []models.DraftModel
	err := whereRef(s.db.WithContext(ctx), ref).
		Where("owner_id = ?", ownerID).
		Order("id ASC").Find(&items).Error
	if err != nil {
		return nil, storageErr("list by document and owner", err)
	}
	return items, nil
}

func (s *GormStore) ListByOwner(ctx context.Context, ownerID string) ([]models.DraftModel, error) {
	var items []models.DraftModel
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id ASC").Find(&items).Error
	if err != nil {
		return nil, storageErr("list by owner", err)
	}
	return items, nil
}

// Move is a single UPDATE statement, so readers see either the old or the new refs.
func (s *GormStore) Move(ctx context.Context, oldRef, newRef string) (int64, error) {
	res := whereRef(s.db.WithContext(ctx).Model(&models.DraftModel{}), oldRef).
		Update("document_ref", refPtr(newRef))
	if res.Error != nil {
		return 0, storageErr("move", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Count(ctx context.Context, ref string) (int64, error) {
	var n int64
	if err := whereRef(s.db.WithContext(ctx).Model(&models.DraftModel{}), ref).Count(&n).Error; err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

func (s *GormStore) PurgeSavedBefore(ctx context.Context, t time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("saved_at < ?", t).Delete(&models.DraftModel{})
	if res.Error != nil {
		return 0, storageErr("purge", res.Error)
	}
	return res.RowsAffected, nil
}

func whereRef(tx *gorm.DB, ref string) *gorm.DB {
	if ref == "" {
		return tx.Where("document_ref IS NULL")
	}
	return tx.Where("document_ref = ?", ref)
}

// isRetryable reports whether a transaction lost a lock race and can be replayed.
func isRetryable(err error) bool {
	var myErr *mysqldriver.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == errLockWaitTimeout || myErr.Number == errDeadlock
}
