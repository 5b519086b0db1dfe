package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/pkg/config"
	"github.com/compozy/vachanamrut/pkg/logger"
)

const (
	keyPrefix         = "vachanamrut:runs:"
	defaultMaxEntries = 500
	defaultTTL        = 24 * time.Hour
)

// RedisPublisher mirrors run events into a capped Redis list per run and
// broadcasts them on a pub/sub channel.
type RedisPublisher struct {
	client     redis.UniversalClient
	prefix     string
	maxEntries int64
	ttl        time.Duration
}

// RedisOptions controls Redis publisher behavior. Zero values use defaults.
type RedisOptions struct {
	Prefix     string
	MaxEntries int64
	TTL        time.Duration
}

// OptionsFromConfig maps the streaming configuration section.
func OptionsFromConfig(cfg *config.StreamingConfig) *RedisOptions {
	return &RedisOptions{MaxEntries: cfg.MaxEntries, TTL: cfg.TTL}
}

// NewRedisClient connects to url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("streaming: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("streaming: ping redis: %w", err)
	}
	return client, nil
}

// NewRedisPublisher constructs a Redis-backed event publisher.
func NewRedisPublisher(client redis.UniversalClient, opts *RedisOptions) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.New("streaming: redis client is required")
	}
	p := &RedisPublisher{
		client:     client,
		prefix:     keyPrefix,
		maxEntries: defaultMaxEntries,
		ttl:        defaultTTL,
	}
	if opts != nil {
		if opts.Prefix != "" {
			p.prefix = opts.Prefix
		}
		if opts.MaxEntries < 0 {
			return nil, fmt.Errorf("streaming: max entries must be >= 0 (got %d)", opts.MaxEntries)
		}
		if opts.MaxEntries > 0 {
			p.maxEntries = opts.MaxEntries
		}
		if opts.TTL > 0 {
			p.ttl = opts.TTL
		}
	}
	return p, nil
}

// Publish numbers the event, appends it to the run log and broadcasts it.
func (p *RedisPublisher) Publish(ctx context.Context, runID core.ID, event Event) (Envelope, error) {
	if runID.IsZero() {
		return Envelope{}, errors.New("streaming: run id is required")
	}
	id, err := p.client.Incr(ctx, p.seqKey(runID)).Result()
	if err != nil {
		return Envelope{}, fmt.Errorf("streaming: increment seq: %w", err)
	}
	envelope, err := NewEnvelope(id, runID, event, time.Now())
	if err != nil {
		return Envelope{}, err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return Envelope{}, fmt.Errorf("streaming: marshal envelope: %w", err)
	}
	logKey := p.logKey(runID)
	pipe := p.client.TxPipeline()
	pipe.RPush(ctx, logKey, payload)
	pipe.LTrim(ctx, logKey, -p.maxEntries, -1)
	pipe.Expire(ctx, logKey, p.ttl)
	pipe.Expire(ctx, p.seqKey(runID), p.ttl)
	pipe.Publish(ctx, p.Channel(runID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return Envelope{}, fmt.Errorf("streaming: persist event: %w", err)
	}
	return envelope, nil
}

// Replay returns stored events with id greater than afterID, oldest first.
// A limit <= 0 returns everything retained.
func (p *RedisPublisher) Replay(ctx context.Context, runID core.ID, afterID int64, limit int) ([]Envelope, error) {
	values, err := p.client.LRange(ctx, p.logKey(runID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("streaming: fetch backlog: %w", err)
	}
	out := make([]Envelope, 0, len(values))
	for _, raw := range values {
		var envelope Envelope
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			logger.FromContext(ctx).Warn("Skipping corrupt run event", "run_id", runID, "error", err)
			continue
		}
		if envelope.ID <= afterID {
			continue
		}
		out = append(out, envelope)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Exists reports whether any event is retained for the run.
func (p *RedisPublisher) Exists(ctx context.Context, runID core.ID) (bool, error) {
	n, err := p.client.Exists(ctx, p.logKey(runID)).Result()
	if err != nil {
		return false, fmt.Errorf("streaming: check run: %w", err)
	}
	return n > 0, nil
}

// Channel returns the pub/sub channel for the run id.
func (p *RedisPublisher) Channel(runID core.ID) string {
	return p.prefix + runID.String()
}

func (p *RedisPublisher) logKey(runID core.ID) string {
	return p.prefix + "log:" + runID.String()
}

func (p *RedisPublisher) seqKey(runID core.ID) string {
	return p.prefix + "seq:" + runID.String()
}
