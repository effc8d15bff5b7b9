package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/synaptiq/insight-engine/internal/knowledge"
	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/observability"
)

// CycleBus publishes per-cycle summaries and merge reports as JSON on a
// Redis channel so external auditors can subscribe without touching the
// document store.
type CycleBus interface {
	PublishCycleSummary(ctx context.Context, s observability.CycleSummary) error
	PublishMergeReport(ctx context.Context, r *knowledge.Report) error
	Close() error
}

type cycleBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewCycleBus connects from env. REDIS_ADDR unset means the bus is disabled;
// the caller gets (nil, nil) and skips publishing.
func NewCycleBus(log *logger.Logger) (CycleBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}
	channel := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if channel == "" {
		channel = "learning_cycles"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &cycleBus{
		log:     log.With("client", "RedisCycleBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *cycleBus) PublishCycleSummary(ctx context.Context, s observability.CycleSummary) error {
	return b.publish(ctx, "cycle_summary", s)
}

func (b *cycleBus) PublishMergeReport(ctx context.Context, r *knowledge.Report) error {
	return b.publish(ctx, "merge_report", r)
}

func (b *cycleBus) publish(ctx context.Context, kind string, payload any) error {
	raw, err := json.Marshal(map[string]any{"kind": kind, "payload": payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

func (b *cycleBus) Close() error {
	return b.rdb.Close()
}
