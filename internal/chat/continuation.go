package chat

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"portal-backend/internal/database"
)

// ContinuationStore is a cache-aside map from conversation id to the
// inference server's continuation token. The Conversation row's
// last_response_id column is the authoritative copy; the in-memory map only
// saves a database read on the hot path. Concurrent turns on one conversation
// race last-write-wins; serializing turns is the caller's job.
type ContinuationStore struct {
	lock   sync.Mutex
	db     *gorm.DB
	tokens map[uuid.UUID]string
}

func NewContinuationStore(db *gorm.DB) *ContinuationStore {
	return &ContinuationStore{
		db:     db,
		tokens: make(map[uuid.UUID]string),
	}
}

// Get returns the current continuation token for conversationId, or "" if the
// conversation has no token yet (a brand-new conversation, not an error). On
// a cache miss the durable copy is read and back-filled into the cache.
func (store *ContinuationStore) Get(conversationId uuid.UUID) (string, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	if token, ok := store.tokens[conversationId]; ok {
		return token, nil
	}

	responseId, err := database.GetConversationResponseId(store.db, conversationId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrConversationNotFound
	} else if err != nil {
		return "", fmt.Errorf("reading continuation token: %w", err)
	}

	if !responseId.Valid {
		return "", nil
	}

	store.tokens[conversationId] = responseId.String
	return responseId.String, nil
}

// Set writes token through to both copies. The durable write is issued first
// so a crash between the two leaves the cache stale at worst, never the
// database.
func (store *ContinuationStore) Set(conversationId uuid.UUID, token string) error {
	if err := database.UpdateConversationResponseId(store.db, conversationId, token); err != nil {
		return fmt.Errorf("writing continuation token: %w", err)
	}

	store.lock.Lock()
	store.tokens[conversationId] = token
	store.lock.Unlock()

	return nil
}

// Invalidate drops the cached copy, forcing the next Get back to the
// database. Used when a conversation is deleted.
func (store *ContinuationStore) Invalidate(conversationId uuid.UUID) {
	store.lock.Lock()
	delete(store.tokens, conversationId)
	store.lock.Unlock()
}
