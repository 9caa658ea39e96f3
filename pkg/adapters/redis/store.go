package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/ddialog/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces all keys written by the store and locker.
const DefaultPrefix = "ddialog:progress:"

// farFuture is the index score for entries that never expire (2100-01-01).
const farFuture = 4102444800

// Store implements ports.ProgressStore using Redis.
// Progress is stored as JSON; a sorted set indexes conversations by expiry.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for progress entries.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(conversationID string) string {
	return s.prefix + conversationID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save writes the progress and its index entry in one pipeline.
func (s *Store) Save(ctx context.Context, conversationID string, progress *domain.Progress) error {
	data, err := domain.EncodeProgress(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = farFuture
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(conversationID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: conversationID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the progress from Redis.
func (s *Store) Load(ctx context.Context, conversationID string) (*domain.Progress, error) {
	val, err := s.client.Get(ctx, s.key(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	p, err := domain.DecodeProgress(val)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return p, nil
}

// Delete removes the progress and its index entry.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(conversationID))
	pipe.ZRem(ctx, s.indexKey(), conversationID)

	_, err := pipe.Exec(ctx)
	return err
}

// List prunes expired index entries and returns the remaining ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired progress: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
