// Package store backs the ranking engine with Redis: the ranking index
// lives in sorted sets, the per-entity detail records in hashes and
// plain keys. All multi-key work goes through pipelines so one logical
// request costs one network exchange per store touched.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"threatwatch/internal/config"
	"threatwatch/internal/ranking"
)

// Key layout. Per-field records use distinct prefixes so a SCAN over
// player:* enumerates exactly one key per entity.
const (
	keyThreatIndex   = "ranking:threat"
	keyLastSeenIndex = "ranking:lastseen"

	prefixPlayer     = "player:"              // primary hash
	prefixDevice     = "device:"              // legacy hash
	prefixSummary    = "summary:"             // JSON blob
	prefixThreat     = "threat:"              // numeric string
	prefixCritical   = "detections:critical:" // numeric string
	prefixWarning    = "detections:warning:"  // numeric string
	prefixCategories = "categories:"          // JSON blob, passthrough

	scanBatch = 500
)

// Store is a Redis-backed implementation of ranking.RankingIndex and
// ranking.DetailStore.
type Store struct {
	rdb *redis.Client
}

// New connects a store using the given configuration. The connection is
// lazy; call Ping to verify it.
func New(cfg config.RedisConfig) *Store {
	return NewFromClient(redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}))
}

// NewFromClient wraps an existing client. Tests use this with miniredis.
func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// =============================================================================
// ranking.RankingIndex
// =============================================================================

// Card returns the ranking index cardinality.
func (s *Store) Card(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, keyThreatIndex).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", keyThreatIndex, err)
	}
	return n, nil
}

// TopRange reads index ranks [start, stop], highest score first.
func (s *Store) TopRange(ctx context.Context, start, stop int64) ([]ranking.RankedEntry, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, keyThreatIndex, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s [%d,%d]: %w", keyThreatIndex, start, stop, err)
	}
	entries := make([]ranking.RankedEntry, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, ranking.RankedEntry{ID: id, Score: z.Score})
	}
	return entries, nil
}

// Score returns the index score for an id, 0 when the id is not ranked.
func (s *Store) Score(ctx context.Context, id string) (float64, error) {
	score, err := s.rdb.ZScore(ctx, keyThreatIndex, id).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("zscore %s %s: %w", keyThreatIndex, id, err)
	}
	return score, nil
}

// RebuildBatch upserts both ranked sets as one pipelined write.
func (s *Store) RebuildBatch(ctx context.Context, threat, lastSeen []ranking.RankedEntry) error {
	pipe := s.rdb.Pipeline()
	for _, e := range threat {
		pipe.ZAdd(ctx, keyThreatIndex, redis.Z{Score: e.Score, Member: e.ID})
	}
	for _, e := range lastSeen {
		pipe.ZAdd(ctx, keyLastSeenIndex, redis.Z{Score: e.Score, Member: e.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuild batch (%d entries): %w", len(threat), err)
	}
	return nil
}

// =============================================================================
// ranking.DetailStore
// =============================================================================

// NewBatch starts an empty pipelined read batch.
func (s *Store) NewBatch() ranking.DetailBatch {
	return &detailBatch{pipe: s.rdb.Pipeline()}
}

// ScanIDs enumerates all known entity ids from the primary hash keys.
// Full scan; only the rebuild path uses it.
func (s *Store) ScanIDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, prefixPlayer+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s*: %w", prefixPlayer, err)
		}
		for _, k := range keys {
			ids = append(ids, strings.TrimPrefix(k, prefixPlayer))
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

// detailBatch queues reads on a go-redis pipeline. The returned commands
// are the futures: each settles with its own error after Exec, so a miss
// on one key never affects the rest of the exchange.
type detailBatch struct {
	pipe redis.Pipeliner
}

func (b *detailBatch) queueCtx() context.Context {
	// Queuing does no I/O; the context passed to Exec governs the round
	// trip. go-redis still wants a context per queued command.
	return context.Background()
}

func (b *detailBatch) QueuePrimary(id string) ranking.HashFuture {
	return b.pipe.HGetAll(b.queueCtx(), prefixPlayer+id)
}

func (b *detailBatch) QueueLegacy(id string) ranking.HashFuture {
	return b.pipe.HGetAll(b.queueCtx(), prefixDevice+id)
}

func (b *detailBatch) QueueSummary(id string) ranking.StringFuture {
	return b.pipe.Get(b.queueCtx(), prefixSummary+id)
}

func (b *detailBatch) QueueThreat(id string) ranking.StringFuture {
	return b.pipe.Get(b.queueCtx(), prefixThreat+id)
}

func (b *detailBatch) QueueCritical(id string) ranking.StringFuture {
	return b.pipe.Get(b.queueCtx(), prefixCritical+id)
}

func (b *detailBatch) QueueWarning(id string) ranking.StringFuture {
	return b.pipe.Get(b.queueCtx(), prefixWarning+id)
}

func (b *detailBatch) QueueCategories(id string) ranking.StringFuture {
	return b.pipe.Get(b.queueCtx(), prefixCategories+id)
}

// Exec runs the pipeline. redis.Nil from individual reads is expected for
// absent records and is left to the futures; anything else is a
// transport-level failure of the whole exchange.
func (b *detailBatch) Exec(ctx context.Context) error {
	if _, err := b.pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("detail batch exec: %w", err)
	}
	return nil
}
