package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/yungbote/learnmate-backend/internal/pkg/errors"
)

// Store persists interview sessions. Load reports pkgerrors.ErrNotFound for
// unknown ids.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	Delete(ctx context.Context, id string) error
}

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func safeID(id string) (string, error) {
	out := strings.Trim(unsafeID.ReplaceAllString(strings.TrimSpace(id), "_"), ".")
	if out == "" {
		return "", fmt.Errorf("session id: %w", pkgerrors.ErrInvalidInput)
	}
	return out, nil
}

func sortNewest(list []*Session) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

const DefaultSessionDir = "sessions"

type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultSessionDir
	}
	return &FileStore{dir: dir}
}

func (s *FileStore) path(id string) (string, error) {
	safe, err := safeID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, safe+".json"), nil
}

func (s *FileStore) Save(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(sess.SessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("session: mkdir: %w", err)
	}
	raw, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("session: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return os.Rename(tmp.Name(), dst)
}

func (s *FileStore) Load(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("session %q: %w", id, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("session: read: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", filepath.Base(p), err)
	}
	return &sess, nil
}

// List skips files that fail to decode.
func (s *FileStore) List(ctx context.Context) ([]*Session, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []*Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	out := []*Session{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		sess, err := s.Load(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		out = append(out, sess)
	}
	sortNewest(out)
	return out, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

const (
	defaultSessionPrefix = "learnmate:assessment:"
	defaultSessionTTL    = 7 * 24 * time.Hour
)

// RedisStore keeps each session under prefix+id and indexes ids in a sorted
// set scored by creation time.
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rdb *goredis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) indexKey() string { return s.prefix + "index" }

func (s *RedisStore) key(id string) (string, error) {
	safe, err := safeID(id)
	if err != nil {
		return "", err
	}
	return s.prefix + "session:" + safe, nil
}

func (s *RedisStore) ready() error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("session: redis %w", pkgerrors.ErrUnavailable)
	}
	return nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	if err := s.ready(); err != nil {
		return err
	}
	key, err := s.key(sess.SessionID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), goredis.Z{Score: float64(sess.CreatedAt.Unix()), Member: sess.SessionID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis write: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	key, err := s.key(id)
	if err != nil {
		return nil, err
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("session %q: %w", id, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis read: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &sess, nil
}

// List drops index entries whose session has expired.
func (s *RedisStore) List(ctx context.Context) ([]*Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ids, err := s.rdb.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis index: %w", err)
	}
	out := make([]*Session, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		sess, err := s.Load(ctx, id)
		if errors.Is(err, pkgerrors.ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		_ = s.rdb.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	sortNewest(out)
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	key, err := s.key(id)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis delete: %w", err)
	}
	return nil
}
