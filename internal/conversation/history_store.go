package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultConversationTTL = 24 * time.Hour
	memorySweepInterval    = time.Minute
)

// ErrConversationNotFound is returned when no history exists for a conversation id.
var ErrConversationNotFound = errors.New("conversation: unknown conversation")

// HistoryStore persists chat transcripts keyed by conversation id.
type HistoryStore interface {
	Load(ctx context.Context, conversationID string) ([]ChatMessage, error)
	Save(ctx context.Context, conversationID string, history []ChatMessage) error
}

// RedisHistoryStore keeps transcripts in Redis with a sliding TTL.
type RedisHistoryStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisHistoryStore stores transcripts under conversation keys, refreshing ttl on every save.
// A nil tracer uses the global provider.
func NewRedisHistoryStore(redisClient *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisHistoryStore {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultConversationTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("relay.internal.conversation.history")
	}
	return &RedisHistoryStore{
		redis:  redisClient,
		ttl:    ttl,
		tracer: tracer,
	}
}

var _ HistoryStore = (*RedisHistoryStore)(nil)

func (s *RedisHistoryStore) Save(ctx context.Context, conversationID string, history []ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_history")
	defer span.End()

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, conversationKey(conversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

func (s *RedisHistoryStore) Load(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, conversationKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w %s", ErrConversationNotFound, conversationID)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}

	var history []ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
	}
	return history, nil
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

// MemoryHistoryStore keeps transcripts in process memory; used when Redis is not configured.
// Expired transcripts are dropped on Load and swept from Save at most once per minute.
type MemoryHistoryStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
	entries   map[string]memoryHistory
}

type memoryHistory struct {
	messages  []ChatMessage
	expiresAt time.Time
}

// NewMemoryHistoryStore keeps transcripts for ttl after their last save.
func NewMemoryHistoryStore(ttl time.Duration) *MemoryHistoryStore {
	if ttl <= 0 {
		ttl = defaultConversationTTL
	}
	return &MemoryHistoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryHistory),
	}
}

var _ HistoryStore = (*MemoryHistoryStore)(nil)

func (s *MemoryHistoryStore) Save(ctx context.Context, conversationID string, history []ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) >= memorySweepInterval {
		s.sweepLocked(now)
	}
	s.entries[conversationID] = memoryHistory{
		messages:  append([]ChatMessage(nil), history...),
		expiresAt: now.Add(s.ttl),
	}
	return nil
}

func (s *MemoryHistoryStore) sweepLocked(now time.Time) {
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.lastSweep = now
}

func (s *MemoryHistoryStore) Load(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrConversationNotFound, conversationID)
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, conversationID)
		return nil, fmt.Errorf("%w %s", ErrConversationNotFound, conversationID)
	}
	return append([]ChatMessage(nil), entry.messages...), nil
}
