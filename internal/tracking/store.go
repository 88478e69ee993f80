package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DispatchContext is what the open/click endpoints need to attribute a
// tracking hit back to the issuance that sent the message. It is keyed by
// message id and kept in redis with a TTL, since tracking long after the
// event ended has no value.
type DispatchContext struct {
	JobID     string    `json:"job_id"`
	CardID    string    `json:"card_id"`
	TenantID  string    `json:"tenant_id"`
	EventID   string    `json:"event_id"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sent_at"`
}

var ErrUnknownMessage = errors.New("tracking: unknown message id")

const (
	keyPrefix = "track:msg:"

	// DefaultTTL keeps contexts for two weeks. Engagement past that window
	// is noise, and expired entries just record as unattributed hits.
	DefaultTTL = 14 * 24 * time.Hour
)

// Store persists dispatch contexts in redis.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Save(ctx context.Context, messageID string, dc DispatchContext) error {
	raw, err := json.Marshal(dc)
	if err != nil {
		return fmt.Errorf("marshal dispatch context: %w", err)
	}

	// idempotent per message id: a redelivered job rewrites the same entry
	if err := s.rdb.Set(ctx, keyPrefix+messageID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save dispatch context: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, messageID string) (DispatchContext, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+messageID).Bytes()
	if errors.Is(err, redis.Nil) {
		return DispatchContext{}, ErrUnknownMessage
	}
	if err != nil {
		return DispatchContext{}, fmt.Errorf("load dispatch context: %w", err)
	}

	var dc DispatchContext
	if err := json.Unmarshal(raw, &dc); err != nil {
		return DispatchContext{}, fmt.Errorf("decode dispatch context: %w", err)
	}
	return dc, nil
}
