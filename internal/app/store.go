package app

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/mx-space/drafts/internal/config"
	"github.com/mx-space/drafts/internal/database"
	"github.com/mx-space/drafts/internal/modules/draft"
)

// OpenStore returns the draft store cfg selects and a func releasing what it
// opened. db may be nil unless the mysql store is selected.
func OpenStore(ctx context.Context, cfg *config.AppConfig, db *gorm.DB) (draft.Store, func(), error) {
	switch cfg.Drafts.Storage {
	case config.StorageMemory:
		store, err := draft.NewMemoryStore()
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.StorageMongo:
		client, mdb, err := database.ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store := draft.NewMongoStore(mdb)
		if err := store.EnsureIndexes(ctx); err != nil {
			disconnect(client)
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return store, func() { disconnect(client) }, nil
	case config.StorageMySQL, "":
		if db == nil {
			return nil, nil, fmt.Errorf("mysql draft store needs a database connection")
		}
		return draft.NewGormStore(db), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown draft storage %q", cfg.Drafts.Storage)
	}
}

func disconnect(client *mongo.Client) {
	_ = client.Disconnect(context.Background())
}
