package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// streamClient is the subset of the Redis client the stream sink uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisConfig configures the Redis stream sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// StreamPrefix is prepended to the record type to name the stream.
	StreamPrefix string

	// MaxLen caps each stream approximately. Zero leaves streams unbounded.
	MaxLen int64
}

// Redis appends each record to a Redis stream named after its type.
type Redis struct {
	client streamClient
	prefix string
	maxLen int64
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedis(client, cfg.StreamPrefix, cfg.MaxLen), nil
}

func newRedis(client streamClient, prefix string, maxLen int64) *Redis {
	return &Redis{client: client, prefix: prefix, maxLen: maxLen}
}

func (s *Redis) Name() string { return "redis" }

// Stream returns the stream a record of the given type is appended to.
func (s *Redis) Stream(typ model.RecordType) string {
	return s.prefix + string(typ)
}

func (s *Redis) Emit(ctx context.Context, rec *model.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rec.Key(), err)
	}

	args := &redis.XAddArgs{
		Stream: s.Stream(rec.Type),
		Values: map[string]any{
			"id":     strconv.FormatInt(rec.ID, 10),
			"record": string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("appending %s to %s: %w", rec.Key(), args.Stream, err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}
