// Package events publishes agent status changes to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/faculty-map/internal/world"
)

// DefaultStream is the stream key status changes are appended to.
const DefaultStream = "facultymap:status"

// streamMaxLen caps the stream; older entries are trimmed approximately.
const streamMaxLen = 10000

// streamClient is the part of *redis.Client the bus uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
	Close() error
}

// Bus publishes status changes via Redis Streams.
type Bus struct {
	rdb    streamClient
	stream string
	logger *zap.Logger
}

// NewBus connects to Redis and verifies the connection.
func NewBus(ctx context.Context, redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newBus(rdb, logger), nil
}

func newBus(rdb streamClient, logger *zap.Logger) *Bus {
	return &Bus{rdb: rdb, stream: DefaultStream, logger: logger}
}

// SetStream changes the stream key. Empty keeps the current one.
func (b *Bus) SetStream(stream string) {
	if stream != "" {
		b.stream = stream
	}
}

// Publish appends one status change to the stream.
func (b *Bus) Publish(ctx context.Context, ch world.StatusChange) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return err
	}

	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"agent_id": ch.AgentID,
			"status":   string(ch.To),
			"data":     string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", b.stream, err)
	}

	b.logger.Debug("published status change",
		zap.String("agent", ch.AgentID),
		zap.String("from", string(ch.From)),
		zap.String("to", string(ch.To)))
	return nil
}

// AfterTick implements world.TickObserver. Publish failures are logged, never retried.
func (b *Bus) AfterTick(ctx context.Context, report world.TickReport) {
	for _, ch := range report.Changes {
		if err := b.Publish(ctx, ch); err != nil {
			b.logger.Warn("status change not published",
				zap.String("agent", ch.AgentID),
				zap.Error(err))
		}
	}
}

// Recent returns up to n of the newest status changes, newest first.
func (b *Bus) Recent(ctx context.Context, n int64) ([]world.StatusChange, error) {
	msgs, err := b.rdb.XRevRangeN(ctx, b.stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.stream, err)
	}
	out := make([]world.StatusChange, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var ch world.StatusChange
		if err := json.Unmarshal([]byte(raw), &ch); err != nil {
			b.logger.Warn("skipping malformed stream entry",
				zap.String("id", m.ID), zap.Error(err))
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

// Close closes the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
