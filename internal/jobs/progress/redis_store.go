package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/yungbote/learnmate-backend/internal/pkg/errors"
)

const (
	defaultKeyPrefix = "learnmate:progress:"
	defaultTTL       = 24 * time.Hour
)

// RedisStore mirrors snapshots under prefix+session_id and publishes each one
// on Channel when it is set.
type RedisStore struct {
	rdb     *goredis.Client
	prefix  string
	ttl     time.Duration
	Channel string
}

func NewRedisStore(rdb *goredis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) (string, error) {
	id, err := SafeID(sessionID)
	if err != nil {
		return "", err
	}
	return s.prefix + id, nil
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("progress: redis %w", pkgerrors.ErrUnavailable)
	}
	key, err := s.key(snap.SessionID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("progress: encode: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, s.ttl)
	if s.Channel != "" {
		pipe.Publish(ctx, s.Channel, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("progress: redis write: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	if s == nil || s.rdb == nil {
		return nil, fmt.Errorf("progress: redis %w", pkgerrors.ErrUnavailable)
	}
	key, err := s.key(sessionID)
	if err != nil {
		return nil, err
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("progress for %q: %w", sessionID, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("progress: redis read: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("progress: decode: %w", err)
	}
	return &snap, nil
}
