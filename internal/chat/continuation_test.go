package chat

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"portal-backend/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

func newTestConversation(t *testing.T, db *gorm.DB, userId int64) uuid.UUID {
	t.Helper()

	conversation := database.Conversation{
		Id:           uuid.New(),
		Title:        "test conversation",
		UserId:       userId,
		CreationTime: time.Now().UTC(),
	}
	require.NoError(t, database.CreateConversation(db, &conversation))
	return conversation.Id
}

func TestGetReturnsEmptyForNewConversation(t *testing.T) {
	db := newTestDB(t)
	conversationId := newTestConversation(t, db, 1)

	store := NewContinuationStore(db)
	token, err := store.Get(conversationId)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestGetUnknownConversation(t *testing.T) {
	db := newTestDB(t)

	store := NewContinuationStore(db)
	_, err := store.Get(uuid.New())
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestSetThenGet(t *testing.T) {
	db := newTestDB(t)
	conversationId := newTestConversation(t, db, 1)

	store := NewContinuationStore(db)
	require.NoError(t, store.Set(conversationId, "resp-1"))

	token, err := store.Get(conversationId)
	require.NoError(t, err)
	assert.Equal(t, "resp-1", token)
}

func TestSetWritesThroughToDurableStore(t *testing.T) {
	db := newTestDB(t)
	conversationId := newTestConversation(t, db, 1)

	store := NewContinuationStore(db)
	require.NoError(t, store.Set(conversationId, "resp-9"))

	// A freshly constructed cache over the same durable store must see the
	// token: Set may not succeed on the cache alone.
	fresh := NewContinuationStore(db)
	token, err := fresh.Get(conversationId)
	require.NoError(t, err)
	assert.Equal(t, "resp-9", token)

	responseId, err := database.GetConversationResponseId(db, conversationId)
	require.NoError(t, err)
	assert.True(t, responseId.Valid)
	assert.Equal(t, "resp-9", responseId.String)
}

func TestGetPrefersCacheOverDurableStore(t *testing.T) {
	db := newTestDB(t)
	conversationId := newTestConversation(t, db, 1)

	store := NewContinuationStore(db)
	require.NoError(t, store.Set(conversationId, "cached"))

	// Mutate the durable copy behind the cache's back; the cached value must
	// still win on the next read.
	require.NoError(t, database.UpdateConversationResponseId(db, conversationId, "mutated"))

	token, err := store.Get(conversationId)
	require.NoError(t, err)
	assert.Equal(t, "cached", token)
}

func TestGetBackfillsCacheOnMiss(t *testing.T) {
	db := newTestDB(t)
	conversationId := newTestConversation(t, db, 1)
	require.NoError(t, database.UpdateConversationResponseId(db, conversationId, "durable"))

	store := NewContinuationStore(db)
	token, err := store.Get(conversationId)
	require.NoError(t, err)
	assert.Equal(t, "durable", token)

	// The first read should have populated the cache.
	require.NoError(t, database.UpdateConversationResponseId(db, conversationId, "changed"))
	token, err = store.Get(conversationId)
	require.NoError(t, err)
	assert.Equal(t, "durable", token)
}

func TestInvalidateForcesDurableRead(t *testing.T) {
	db := newTestDB(t)
	conversationId := newTestConversation(t, db, 1)

	store := NewContinuationStore(db)
	require.NoError(t, store.Set(conversationId, "old"))
	require.NoError(t, database.UpdateConversationResponseId(db, conversationId, "new"))

	store.Invalidate(conversationId)

	token, err := store.Get(conversationId)
	require.NoError(t, err)
	assert.Equal(t, "new", token)
}
