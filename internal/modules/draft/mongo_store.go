package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mx-space/drafts/internal/models"
)

const (
	colDrafts   = "drafts"
	colCounters = "counters"
)

// mongoDraft is the document shape of a draft. Content is kept as its JSON encoding
// so structured forms keep their key order.
type mongoDraft struct {
	ID                 int64      `bson:"_id"`
	OwnerID            string     `bson:"owner_id"`
	DocumentRef        *string    `bson:"document_ref"`
	SectionRef         *string    `bson:"section_ref,omitempty"`
	CaptureStartTime   time.Time  `bson:"capture_start_time"`
	SourceRevisionTime *time.Time `bson:"source_revision_time,omitempty"`
	SavedAt            time.Time  `bson:"saved_at"`
	ScrollPosition     int        `bson:"scroll_position"`
	Content            string     `bson:"content"`
	Summary            string     `bson:"summary"`
	IsMinorEdit        bool       `bson:"is_minor_edit"`
	OwnerToken         string     `bson:"owner_token"`
	CreatedAt          time.Time  `bson:"created_at"`
}

func toMongoDraft(d *models.DraftModel) (*mongoDraft, error) {
	content, err := json.Marshal(d.Content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	return &mongoDraft{
		ID:                 int64(d.ID),
		OwnerID:            d.OwnerID,
		DocumentRef:        d.DocumentRef,
		SectionRef:         d.SectionRef,
		CaptureStartTime:   d.CaptureStartTime,
		SourceRevisionTime: d.SourceRevisionTime,
		SavedAt:            d.SavedAt,
		ScrollPosition:     d.ScrollPosition,
		Content:            string(content),
		Summary:            d.Summary,
		IsMinorEdit:        d.IsMinorEdit,
		OwnerToken:         d.OwnerToken,
		CreatedAt:          d.CreatedAt,
	}, nil
}

func (m *mongoDraft) toModel() (*models.DraftModel, error) {
	d := &models.DraftModel{
		ID:                 uint64(m.ID),
		OwnerID:            m.OwnerID,
		DocumentRef:        m.DocumentRef,
		SectionRef:         m.SectionRef,
		CaptureStartTime:   m.CaptureStartTime,
		SourceRevisionTime: m.SourceRevisionTime,
		SavedAt:            m.SavedAt,
		ScrollPosition:     m.ScrollPosition,
		Summary:            m.Summary,
		IsMinorEdit:        m.IsMinorEdit,
		OwnerToken:         m.OwnerToken,
		CreatedAt:          m.CreatedAt,
	}
	if err := json.Unmarshal([]byte(m.Content), &d.Content); err != nil {
		return nil, fmt.Errorf("decode content of draft %d: %w", m.ID, err)
	}
	return d, nil
}

// MongoStore persists drafts in a MongoDB database. Move runs in a multi-document
// transaction and therefore needs a replica set.
type MongoStore struct {
	db   *mongo.Database
	opts storeOptions
}

func NewMongoStore(db *mongo.Database, opts ...StoreOption) *MongoStore {
	return &MongoStore{db: db, opts: newStoreOptions(opts)}
}

// EnsureIndexes creates the indexes the queries rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(colDrafts).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_ref", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "document_ref", Value: 1}}},
		{Keys: bson.D{{Key: "saved_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create draft indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) drafts() *mongo.Collection { return s.db.Collection(colDrafts) }

func (s *MongoStore) Load(ctx context.Context, id uint64) (*models.DraftModel, error) {
	var doc mongoDraft
	err := s.drafts().FindOne(ctx, bson.M{"_id": int64(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, storageErr("load", err)
	}
	d, err := doc.toModel()
	return d, storageErr("load", err)
}

func (s *MongoStore) Save(ctx context.Context, d *models.DraftModel) (uint64, error) {
	now := s.opts.now()
	if d.ID != 0 {
		var doc mongoDraft
		err := s.drafts().FindOne(ctx, bson.M{"_id": int64(d.ID), "owner_id": d.OwnerID}).Decode(&doc)
		switch {
		case err == nil:
			existing, err := doc.toModel()
			if err != nil {
				return 0, storageErr("save", err)
			}
			row := overwrite(existing, d, now)
			replaced, err := s.replace(ctx, row)
			if err != nil {
				return 0, storageErr("save", err)
			}
			if replaced {
				stamp(d, row)
				return row.ID, nil
			}
		case !errors.Is(err, mongo.ErrNoDocuments):
			return 0, storageErr("save", err)
		}
	}

	row := fresh(d, now)
	id, err := s.nextID(ctx)
	if err != nil {
		return 0, storageErr("save", err)
	}
	row.ID = id
	doc, err := toMongoDraft(row)
	if err != nil {
		return 0, storageErr("save", err)
	}
	if _, err := s.drafts().InsertOne(ctx, doc); err != nil {
		return 0, storageErr("save", err)
	}
	stamp(d, row)
	return row.ID, nil
}

// replace overwrites the row unless it was discarded since it was read.
func (s *MongoStore) replace(ctx context.Context, row *models.DraftModel) (bool, error) {
	doc, err := toMongoDraft(row)
	if err != nil {
		return false, err
	}
	res, err := s.drafts().ReplaceOne(ctx, bson.M{"_id": doc.ID, "owner_id": doc.OwnerID}, doc)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) nextID(ctx context.Context) (uint64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": colDrafts},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate draft id: %w", err)
	}
	return uint64(counter.Seq), nil
}

func (s *MongoStore) Discard(ctx context.Context, id uint64, actingUserID string) error {
	_, err := s.drafts().DeleteOne(ctx, bson.M{"_id": int64(id), "owner_id": actingUserID})
	return storageErr("discard", err)
}

func (s *MongoStore) ListByDocument(ctx context.Context, ref string) ([]models.DraftModel, error) {
	items, err := s.find(ctx, bson.M{"document_ref": refPtr(ref)})
	return items, storageErr("list by document", err)
}

func (s *MongoStore) ListByDocumentAndOwner(ctx context.Context, ref, ownerID string) ([]models.DraftModel, error) {
	items, err := s.find(ctx, bson.M{"document_ref": refPtr(ref), "owner_id": ownerID})
	return items, storageErr("list by document and owner", err)
}

func (s *MongoStore) ListByOwner(ctx context.Context, ownerID string) ([]models.DraftModel, error) {
	items, err := s.find(ctx, bson.M{"owner_id": ownerID})
	return items, storageErr("list by owner", err)
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]models.DraftModel, error) {
	cursor, err := s.drafts().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []mongoDraft
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]models.DraftModel, 0, len(docs))
	for i := range docs {
		d, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	return items, nil
}

func (s *MongoStore) Move(ctx context.Context, oldRef, newRef string) (int64, error) {
	sess, err := s.db.Client().StartSession()
	if err != nil {
		return 0, storageErr("move", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return s.drafts().UpdateMany(sc,
			bson.M{"document_ref": refPtr(oldRef)},
			bson.M{"$set": bson.M{"document_ref": refPtr(newRef)}},
		)
	})
	if err != nil {
		return 0, storageErr("move", err)
	}
	return res.(*mongo.UpdateResult).ModifiedCount, nil
}

func (s *MongoStore) Count(ctx context.Context, ref string) (int64, error) {
	n, err := s.drafts().CountDocuments(ctx, bson.M{"document_ref": refPtr(ref)})
	if err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

func (s *MongoStore) PurgeSavedBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.drafts().DeleteMany(ctx, bson.M{"saved_at": bson.M{"$lt": t}})
	if err != nil {
		return 0, storageErr("purge", err)
	}
	return res.DeletedCount, nil
}
