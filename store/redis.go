package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements NotebookStore on Redis. A notebook is a hash at
// <prefix>notebook:<id>, its batches a list at <prefix>notebook:<id>:batches,
// and the set <prefix>notebooks indexes all IDs.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "nb:"}
}

func (s *RedisStore) key(id string) string        { return s.prefix + "notebook:" + id }
func (s *RedisStore) batchesKey(id string) string { return s.key(id) + ":batches" }
func (s *RedisStore) indexKey() string            { return s.prefix + "notebooks" }

func (s *RedisStore) Create(ctx context.Context, id, title, content string) error {
	key := s.key(id)
	ok, err := s.client.HSetNX(ctx, key, "id", id).Result()
	if err != nil {
		return fmt.Errorf("create notebook: %w", err)
	}
	if !ok {
		return exists(id)
	}

	now := formatTime(time.Now())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"title", title,
			"labels", "[]",
			"content", content,
			"version", 0,
			"createdAt", now,
			"updatedAt", now,
		)
		pipe.SAdd(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create notebook: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*NotebookInfo, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get notebook: %w", err)
	}
	if len(fields) == 0 {
		return nil, notFound(id)
	}
	return hashToInfo(id, fields)
}

func hashToInfo(id string, fields map[string]string) (*NotebookInfo, error) {
	info := &NotebookInfo{
		ID:      id,
		Title:   fields["title"],
		Content: fields["content"],
		Labels:  []string{},
	}
	if v := fields["version"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("notebook %q: bad version %q", id, v)
		}
		info.Version = n
	}
	if l := fields["labels"]; l != "" {
		if err := json.Unmarshal([]byte(l), &info.Labels); err != nil {
			return nil, fmt.Errorf("notebook %q: bad labels: %w", id, err)
		}
	}
	info.CreatedAt = parseTime(fields["createdAt"])
	info.UpdatedAt = parseTime(fields["updatedAt"])
	return info, nil
}

// List returns all notebooks ordered by ID.
func (s *RedisStore) List(ctx context.Context) ([]NotebookInfo, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	sort.Strings(ids)

	result := make([]NotebookInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, *info)
	}
	return result, nil
}

func (s *RedisStore) requireExists(ctx context.Context, id string) error {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("lookup notebook: %w", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *RedisStore) UpdateContent(ctx context.Context, id, content string, version int) error {
	if err := s.requireExists(ctx, id); err != nil {
		return err
	}
	err := s.client.HSet(ctx, s.key(id),
		"content", content,
		"version", version,
		"updatedAt", formatTime(time.Now()),
	).Err()
	if err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	return nil
}

func (s *RedisStore) SetLabels(ctx context.Context, id string, labels []string) error {
	if err := s.requireExists(ctx, id); err != nil {
		return err
	}
	data, err := json.Marshal(copyLabels(labels))
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	err = s.client.HSet(ctx, s.key(id),
		"labels", string(data),
		"updatedAt", formatTime(time.Now()),
	).Err()
	if err != nil {
		return fmt.Errorf("set labels: %w", err)
	}
	return nil
}

func (s *RedisStore) AppendBatch(ctx context.Context, id string, b Batch, version int) error {
	if err := s.requireExists(ctx, id); err != nil {
		return err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.batchesKey(id), string(data))
		pipe.HSet(ctx, s.key(id), "version", version, "updatedAt", formatTime(time.Now()))
		return nil
	})
	if err != nil {
		return fmt.Errorf("append batch: %w", err)
	}
	return nil
}

func (s *RedisStore) GetBatches(ctx context.Context, id string, fromVersion int) ([]Batch, error) {
	if err := s.requireExists(ctx, id); err != nil {
		return nil, err
	}
	n, err := s.client.LLen(ctx, s.batchesKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get batches: %w", err)
	}
	if fromVersion < 0 || int64(fromVersion) > n {
		return nil, invalidVersion(fromVersion)
	}

	raws, err := s.client.LRange(ctx, s.batchesKey(id), int64(fromVersion), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get batches: %w", err)
	}
	batches := make([]Batch, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal([]byte(raw), &batches[i]); err != nil {
			return nil, fmt.Errorf("unmarshal batch %d: %w", fromVersion+i, err)
		}
	}
	return batches, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
