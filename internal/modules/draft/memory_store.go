package draft

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/mx-space/drafts/internal/models"
)

const tblDrafts = "drafts"

// draftRecord is the row shape kept in memdb. DocumentRef is flattened to a string so
// it can be indexed; drafts without a document are left out of the document indexes.
type draftRecord struct {
	ID          uint64
	OwnerID     string
	DocumentRef string
	Draft       *models.DraftModel
}

var memorySchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblDrafts: {
			Name: tblDrafts,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.UintFieldIndex{Field: "ID"},
				},
				"owner": {
					Name:    "owner",
					Indexer: &memdb.StringFieldIndex{Field: "OwnerID"},
				},
				"document": {
					Name:         "document",
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "DocumentRef"},
				},
				"document_owner": {
					Name:         "document_owner",
					AllowMissing: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "DocumentRef"},
							&memdb.StringFieldIndex{Field: "OwnerID"},
						},
					},
				},
			},
		},
	},
}

// MemoryStore keeps drafts in process memory. It backs tests and single-process
// development setups.
type MemoryStore struct {
	db     *memdb.MemDB
	lastID atomic.Uint64
	opts   storeOptions
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...StoreOption) (*MemoryStore, error) {
	db, err := memdb.NewMemDB(memorySchema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}
	return &MemoryStore{db: db, opts: newStoreOptions(opts)}, nil
}

func (s *MemoryStore) Load(_ context.Context, id uint64) (*models.DraftModel, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblDrafts, "id", id)
	if err != nil {
		return nil, storageErr("load", err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*draftRecord).Draft.DeepCopy(), nil
}

func (s *MemoryStore) Save(_ context.Context, d *models.DraftModel) (uint64, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	now := s.opts.now()
	var row *models.DraftModel
	if d.ID != 0 {
		raw, err := txn.First(tblDrafts, "id", d.ID)
		if err != nil {
			return 0, storageErr("save", err)
		}
		if raw != nil && raw.(*draftRecord).OwnerID == d.OwnerID {
			row = overwrite(raw.(*draftRecord).Draft, d, now)
		}
	}
	if row == nil {
		row = fresh(d, now)
		row.ID = s.lastID.Add(1)
	}

	if err := txn.Insert(tblDrafts, newDraftRecord(row)); err != nil {
		return 0, storageErr("save", err)
	}
	txn.Commit()

	stamp(d, row.DeepCopy())
	return row.ID, nil
}

func (s *MemoryStore) Discard(_ context.Context, id uint64, actingUserID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDrafts, "id", id)
	if err != nil {
		return storageErr("discard", err)
	}
	if raw == nil || raw.(*draftRecord).OwnerID != actingUserID {
		return nil
	}
	if err := txn.Delete(tblDrafts, raw); err != nil {
		return storageErr("discard", err)
	}
	txn.Commit()
	return nil
}

func (s *MemoryStore) ListByDocument(_ context.Context, ref string) ([]models.DraftModel, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	records, err := s.byDocument(txn, ref, "")
	if err != nil {
		return nil, storageErr("list by document", err)
	}
	return toDrafts(records), nil
}

func (s *MemoryStore) ListByDocumentAndOwner(_ context.Context, ref, ownerID string) ([]models.DraftModel, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	records, err := s.byDocument(txn, ref, ownerID)
	if err != nil {
		return nil, storageErr("list by document and owner", err)
	}
	return toDrafts(records), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]models.DraftModel, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	records, err := collect(txn.Get(tblDrafts, "owner", ownerID))
	if err != nil {
		return nil, storageErr("list by owner", err)
	}
	return toDrafts(records), nil
}

func (s *MemoryStore) Move(_ context.Context, oldRef, newRef string) (int64, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	// NOTE: collect first; memdb iterators must not observe their own writes.
	records, err := s.byDocument(txn, oldRef, "")
	if err != nil {
		return 0, storageErr("move", err)
	}
	for _, rec := range records {
		row := rec.Draft.DeepCopy()
		row.DocumentRef = refPtr(newRef)
		if err := txn.Insert(tblDrafts, newDraftRecord(row)); err != nil {
			return 0, storageErr("move", err)
		}
	}
	txn.Commit()
	return int64(len(records)), nil
}

func (s *MemoryStore) Count(_ context.Context, ref string) (int64, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	records, err := s.byDocument(txn, ref, "")
	if err != nil {
		return 0, storageErr("count", err)
	}
	return int64(len(records)), nil
}

func (s *MemoryStore) PurgeSavedBefore(_ context.Context, t time.Time) (int64, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	records, err := collect(txn.Get(tblDrafts, "id"))
	if err != nil {
		return 0, storageErr("purge", err)
	}
	var n int64
	for _, rec := range records {
		if !rec.Draft.SavedAt.Before(t) {
			continue
		}
		if err := txn.Delete(tblDrafts, rec); err != nil {
			return 0, storageErr("purge", err)
		}
		n++
	}
	txn.Commit()
	return n, nil
}

// byDocument returns the records of ref, optionally narrowed to one owner, sorted by
// id. Drafts without a document are not in the document indexes, so an empty ref
// falls back to a scan.
func (s *MemoryStore) byDocument(txn *memdb.Txn, ref, ownerID string) ([]*draftRecord, error) {
	var (
		records []*draftRecord
		err     error
	)
	switch {
	case ref == "" && ownerID == "":
		records, err = collect(txn.Get(tblDrafts, "id"))
	case ref == "":
		records, err = collect(txn.Get(tblDrafts, "owner", ownerID))
	case ownerID == "":
		records, err = collect(txn.Get(tblDrafts, "document", ref))
	default:
		records, err = collect(txn.Get(tblDrafts, "document_owner", ref, ownerID))
	}
	if err != nil {
		return nil, err
	}
	if ref == "" {
		filtered := records[:0]
		for _, rec := range records {
			if rec.DocumentRef == "" {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	return records, nil
}

func collect(iter memdb.ResultIterator, err error) ([]*draftRecord, error) {
	if err != nil {
		return nil, err
	}
	var records []*draftRecord
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		records = append(records, raw.(*draftRecord))
	}
	// uint indexes are varint encoded and do not iterate in numeric order.
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func newDraftRecord(d *models.DraftModel) *draftRecord {
	return &draftRecord{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		DocumentRef: d.Ref(),
		Draft:       d.DeepCopy(),
	}
}

func toDrafts(records []*draftRecord) []models.DraftModel {
	out := make([]models.DraftModel, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec.Draft.DeepCopy())
	}
	return out
}
