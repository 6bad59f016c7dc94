package reaction

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"social-realtime/model"
	"social-realtime/repository"
	"social-realtime/socketio/sockettest"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newStoreBatcher wires the batcher to the gorm repository on sqlite.
func newStoreBatcher(t *testing.T) (*Batcher, *repository.Repository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "reaction.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Reaction{}))

	repo := repository.New(db)
	return NewBatcher(repo, &sockettest.Recorder{}, time.Hour), repo
}

func TestBatcherStore_RapidTogglesFlipOnce(t *testing.T) {
	ctx := context.Background()
	b, repo := newStoreBatcher(t)

	for _, on := range []bool{true, false, true, false} {
		require.NoError(t, b.Toggle(model.ForumLike, "forum-1", "alice", on))
	}
	require.NoError(t, b.Flush(ctx))

	has, err := repo.HasReaction(ctx, model.ForumLike, "forum-1", "alice")
	require.NoError(t, err)
	assert.True(t, has, "a missing row is created by the single flip")
}

func TestBatcherStore_ExistingRowIsDeleted(t *testing.T) {
	ctx := context.Background()
	b, repo := newStoreBatcher(t)

	_, err := repo.SetReaction(ctx, model.PostWink, "post-1", "alice", true)
	require.NoError(t, err)

	require.NoError(t, b.Toggle(model.PostWink, "post-1", "alice", true))
	require.NoError(t, b.Flush(ctx))

	has, err := repo.HasReaction(ctx, model.PostWink, "post-1", "alice")
	require.NoError(t, err)
	assert.False(t, has)

	count, err := repo.CountReactions(ctx, model.PostWink, "post-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}
