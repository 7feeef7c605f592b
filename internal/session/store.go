// Package session tracks which backend conversation each sender is currently in.
package session

import (
	"context"
	"sync"
)

// Store maps a sender identity to the latest conversation id issued by the backend.
// It keeps no history: Set overwrites whatever was stored before.
type Store interface {
	Get(ctx context.Context, sender string) (string, bool)
	Set(ctx context.Context, sender, conversationID string)
}

// MemoryStore is a process-local Store. Entries live until the process exits.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]string)}
}

var _ Store = (*MemoryStore)(nil)

// Get returns the active conversation id for sender, if any.
func (s *MemoryStore) Get(ctx context.Context, sender string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.conversations[sender]
	return id, ok
}

// Set records conversationID as the active conversation for sender.
func (s *MemoryStore) Set(ctx context.Context, sender, conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[sender] = conversationID
}

// Len reports how many senders have an active conversation.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
