package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/esdump/pkg/logging"
	"github.com/Sternrassler/esdump/pkg/pagination"
)

// KeyPrefix namespaces every key the tracker writes.
const KeyPrefix = "esdump"

// DefaultTTL is how long a run's progress stays readable after its last update.
const DefaultTTL = 24 * time.Hour

// SliceProgress is the persisted progress of one slice.
type SliceProgress struct {
	SliceID   int
	Documents int64
	Pages     int64
	State     string
	Error     string
	UpdatedAt time.Time
}

// RedisTracker publishes per-slice progress to Redis so other processes can
// watch a long dump. Each slice owns one hash:
//
//	esdump:<run>:slice:<id>  docs, pages, state, error, updated_at
type RedisTracker struct {
	redis  *redis.Client
	runID  string
	ttl    time.Duration
	logger zerolog.Logger
}

var _ pagination.Observer = (*RedisTracker)(nil)

// NewRedisTracker creates a tracker for one run.
func NewRedisTracker(client *redis.Client, runID string, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{
		redis:  client,
		runID:  runID,
		ttl:    ttl,
		logger: logging.NewLogger(logging.ComponentProgress).With().Str("run_id", runID).Logger(),
	}
}

// SliceKey returns the hash key of one slice.
func SliceKey(runID string, sliceID int) string {
	return fmt.Sprintf("%s:%s:slice:%d", KeyPrefix, runID, sliceID)
}

// Start marks every slice as running so watchers see the full set at once.
func (t *RedisTracker) Start(ctx context.Context, slices int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := t.redis.Pipeline()
	for id := 0; id < slices; id++ {
		key := SliceKey(t.runID, id)
		pipe.HSet(ctx, key, "docs", 0, "pages", 0, "state", pagination.StateInit.String(), "updated_at", now)
		pipe.Expire(ctx, key, t.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("initialize progress in redis: %w", err)
	}
	return nil
}

func (t *RedisTracker) PageEmitted(ctx context.Context, sliceID int, hits int) {
	key := SliceKey(t.runID, sliceID)

	pipe := t.redis.Pipeline()
	pipe.HIncrBy(ctx, key, "docs", int64(hits))
	pipe.HIncrBy(ctx, key, "pages", 1)
	pipe.HSet(ctx, key, "state", pagination.StateEmitting.String(), "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn().Err(err).Int("slice", sliceID).Msg("Failed to record page progress")
	}
}

func (t *RedisTracker) SliceFinished(ctx context.Context, outcome pagination.Outcome) {
	key := SliceKey(t.runID, outcome.SliceID)

	errMsg := ""
	if outcome.Err != nil {
		errMsg = outcome.Err.Error()
	}

	pipe := t.redis.Pipeline()
	pipe.HSet(ctx, key,
		"docs", outcome.Documents,
		"pages", outcome.Pages,
		"state", outcome.State.String(),
		"error", errMsg,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn().Err(err).Int("slice", outcome.SliceID).Msg("Failed to record slice outcome")
	}
}

// Snapshot reads the progress of slices 0..slices-1. Slices with no hash
// yet are reported with an empty State.
func (t *RedisTracker) Snapshot(ctx context.Context, slices int) ([]SliceProgress, error) {
	pipe := t.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, slices)
	for id := 0; id < slices; id++ {
		cmds[id] = pipe.HGetAll(ctx, SliceKey(t.runID, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read progress from redis: %w", err)
	}

	out := make([]SliceProgress, slices)
	for id, cmd := range cmds {
		fields := cmd.Val()
		p := SliceProgress{SliceID: id, State: fields["state"], Error: fields["error"]}
		p.Documents, _ = strconv.ParseInt(fields["docs"], 10, 64)
		p.Pages, _ = strconv.ParseInt(fields["pages"], 10, 64)
		if ts := fields["updated_at"]; ts != "" {
			updated, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return nil, fmt.Errorf("parse updated_at of slice %d: %w", id, err)
			}
			p.UpdatedAt = updated
		}
		out[id] = p
	}
	return out, nil
}
