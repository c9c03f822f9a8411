package draft_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mx-space/drafts/internal/models"
	"github.com/mx-space/drafts/internal/modules/draft"
	"github.com/mx-space/drafts/internal/modules/draft/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, opts ...draft.StoreOption) draft.Store {
		store, err := draft.NewMemoryStore(opts...)
		require.NoError(t, err)
		return store
	})
}

func TestGormStore(t *testing.T) {
	dsn := os.Getenv("DRAFTS_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("DRAFTS_TEST_MYSQL_DSN not set")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.DraftModel{}))

	storetest.Run(t, func(t *testing.T, opts ...draft.StoreOption) draft.Store {
		require.NoError(t, db.Exec("DELETE FROM drafts").Error)
		return draft.NewGormStore(db, opts...)
	})
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("DRAFTS_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DRAFTS_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	var n atomic.Int32
	storetest.Run(t, func(t *testing.T, opts ...draft.StoreOption) draft.Store {
		db := client.Database(fmt.Sprintf("drafts_test_%d_%d", time.Now().Unix(), n.Add(1)))
		t.Cleanup(func() { _ = db.Drop(ctx) })
		store := draft.NewMongoStore(db, opts...)
		require.NoError(t, store.EnsureIndexes(ctx))
		return store
	})
}

func TestStorageError(t *testing.T) {
	cause := errors.New("connection refused")
	var err error = &draft.StorageError{Op: "save", Err: cause}

	assert.ErrorIs(t, err, cause)
	var se *draft.StorageError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &se))
	assert.Equal(t, "save", se.Op)
	assert.Equal(t, "draft store: save: connection refused", err.Error())
}
