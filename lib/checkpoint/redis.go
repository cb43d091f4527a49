package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/padm/dwh/lib/config"
	"github.com/padm/dwh/lib/cursor"
	"github.com/padm/dwh/lib/retry"
)

const (
	keyPrefix = "dwh:checkpoints:"
	// Each hash field holds "<kind>:<value>", e.g. "date:2024-01-15".
	fieldSeparator = ":"
)

var retryableNetworkErrors = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	io.EOF,
	syscall.ETIMEDOUT,
}

var retryableRedisMessages = []string{"BUSY", "TRYAGAIN", "LOADING", "MASTERDOWN", "READONLY", "connection pool timeout", "i/o timeout"}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	for _, retryableErr := range retryableNetworkErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, msg := range retryableRedisMessages {
		if strings.Contains(err.Error(), msg) {
			return true
		}
	}

	return false
}

func redisKey(resource string) string {
	return keyPrefix + resource
}

func encodeField(state State) (string, error) {
	kind, value, err := state.Encode()
	if err != nil {
		return "", err
	}
	return string(kind) + fieldSeparator + value, nil
}

func decodeField(field string) (any, error) {
	kind, value, ok := strings.Cut(field, fieldSeparator)
	if !ok {
		return nil, fmt.Errorf("malformed checkpoint: %q", field)
	}
	return cursor.Decode(cursor.Kind(kind), value)
}

// RedisMirror keeps a copy of the checkpoints in one hash per resource (field = source database), so other jobs can
// see how far the warehouse is without opening the DuckDB file.
type RedisMirror struct {
	client   *redis.Client
	retryCfg retry.RetryConfig
}

func NewRedisMirror(ctx context.Context, cfg *config.Redis) (*RedisMirror, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	mirror := newRedisMirror(redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.Database,
	}))

	if err := mirror.client.Ping(ctx).Err(); err != nil {
		_ = mirror.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("Mirroring checkpoints to redis", slog.String("address", cfg.Address), slog.Int("database", cfg.Database))
	return mirror, nil
}

func newRedisMirror(client *redis.Client) *RedisMirror {
	return &RedisMirror{
		client: client,
		retryCfg: retry.NewRetryConfig(retry.NewRetryConfigArgs{
			JitterBaseMs:   100,
			JitterMaxMs:    2_000,
			MaxAttempts:    3,
			IsRetryableErr: isRetryableError,
		}),
	}
}

func (r *RedisMirror) Publish(ctx context.Context, states []State) error {
	if len(states) == 0 {
		return nil
	}

	fields := make(map[string]map[string]any)
	for _, state := range states {
		field, err := encodeField(state)
		if err != nil {
			return err
		}

		if _, ok := fields[state.Resource]; !ok {
			fields[state.Resource] = make(map[string]any)
		}
		fields[state.Resource][state.SourceDB] = field
	}

	return r.retryCfg.WithRetries(ctx, func(_ int, _ error) error {
		pipeline := r.client.TxPipeline()
		for resource, values := range fields {
			pipeline.HSet(ctx, redisKey(resource), values)
			pipeline.HSet(ctx, redisKey(resource), "_updated_at", time.Now().UTC().Format(time.RFC3339))
		}

		if _, err := pipeline.Exec(ctx); err != nil {
			return fmt.Errorf("failed to publish checkpoints: %w", err)
		}
		return nil
	})
}

// Read returns the mirrored checkpoints of a resource keyed by source database.
func (r *RedisMirror) Read(ctx context.Context, resource string) (map[string]any, error) {
	fields, err := r.client.HGetAll(ctx, redisKey(resource)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}

	values := make(map[string]any)
	for sourceDB, field := range fields {
		if strings.HasPrefix(sourceDB, "_") {
			continue
		}

		value, err := decodeField(field)
		if err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint for %q/%q: %w", resource, sourceDB, err)
		}
		values[sourceDB] = value
	}
	return values, nil
}

func (r *RedisMirror) Close() error {
	return r.client.Close()
}
