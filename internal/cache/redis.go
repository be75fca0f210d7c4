// Package cache mirrors ingested symbol summaries into Redis for the chart
// frontend.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"seed-ingest/internal/config"
	"seed-ingest/internal/model"
	"seed-ingest/internal/storage"
)

const defaultKeyPrefix = "seed"

// RedisPublisher writes one hash per live symbol plus an index set of names.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*RedisPublisher, error) {
	logger = logger.With().Str("component", "cache").Logger()
	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("initialising redis client")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix, ttl: cfg.TTL, logger: logger}, nil
}

// Publish stores the symbol's serving summary.
func (p *RedisPublisher) Publish(ctx context.Context, state storage.SymbolState) error {
	key := p.symbolKey(state.Record.Name)
	pipe := p.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, SummaryFields(state)...)
	if p.ttl > 0 {
		pipe.Expire(ctx, key, p.ttl)
	}
	pipe.SAdd(ctx, p.indexKey(), state.Record.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", state.Record.Name, err)
	}
	p.logger.Debug().Str("symbol", state.Record.Name).Int64("version", state.Version).Msg("summary published")
	return nil
}

// Unpublish drops a removed symbol from the cache.
func (p *RedisPublisher) Unpublish(ctx context.Context, symbol string) error {
	pipe := p.client.TxPipeline()
	pipe.Del(ctx, p.symbolKey(symbol))
	pipe.SRem(ctx, p.indexKey(), symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unpublish %s: %w", symbol, err)
	}
	p.logger.Debug().Str("symbol", symbol).Msg("summary removed")
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func (p *RedisPublisher) symbolKey(symbol string) string {
	return SymbolKey(p.prefix, symbol)
}

func (p *RedisPublisher) indexKey() string {
	return p.prefix + ":symbols"
}

// SymbolKey names the hash holding a symbol's summary.
func SymbolKey(prefix, symbol string) string {
	return prefix + ":symbol:" + symbol
}

// SummaryFields flattens a symbol state into HSET field/value pairs.
func SummaryFields(state storage.SymbolState) []interface{} {
	rec := state.Record
	fields := []interface{}{
		"symbol", rec.Name,
		"exchange", rec.Exchange,
		"description", rec.Description,
		"currency", rec.Currency,
		"session", rec.Session,
		"timezone", rec.Timezone,
		"type", rec.Type,
		"pricescale", strconv.FormatInt(rec.PriceScale, 10),
		"version", strconv.FormatInt(state.Version, 10),
		"rows", strconv.FormatInt(state.RowCount, 10),
	}
	if !state.FirstTime.IsZero() {
		fields = append(fields, "first", model.FormatTime(state.FirstTime))
	}
	if !state.LastTime.IsZero() {
		fields = append(fields, "last", model.FormatTime(state.LastTime))
	}
	if !state.UpdatedAt.IsZero() {
		fields = append(fields, "updated_at", state.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return fields
}
