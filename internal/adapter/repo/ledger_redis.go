package repo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tutor/internal/domain"
)

// consumeScript applies one admission atomically. Times are unix
// milliseconds; an empty next reset means the plan never resets and an
// empty limit means unlimited.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local next_reset = ARGV[2]
local limit = ARGV[3]

local count = tonumber(redis.call('HGET', key, 'count') or '0')
local reset_raw = redis.call('HGET', key, 'reset_at')
if reset_raw == false then
  reset_raw = ''
end

local rolled = 0
if next_reset ~= '' and reset_raw ~= '' and tonumber(reset_raw) < now then
  count = 0
  reset_raw = next_reset
  rolled = 1
end

local admitted = 0
if limit == '' or count < tonumber(limit) then
  admitted = 1
  count = count + 1
  if reset_raw == '' and next_reset ~= '' then
    reset_raw = next_reset
  end
end

if admitted == 1 or rolled == 1 then
  redis.call('HSET', key, 'count', count, 'updated_at', ARGV[1])
  if reset_raw ~= '' then
    redis.call('HSET', key, 'reset_at', reset_raw)
  end
end

return {admitted, count, reset_raw, rolled}
`)

// LedgerRepositoryRedis implements domain.LedgerStore on Redis hashes.
type LedgerRepositoryRedis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLedgerRepository(client redis.UniversalClient, prefix string) *LedgerRepositoryRedis {
	if prefix == "" {
		prefix = "usage:"
	}
	return &LedgerRepositoryRedis{client: client, prefix: prefix}
}

func (r *LedgerRepositoryRedis) key(userID string) string {
	return r.prefix + userID
}

func (r *LedgerRepositoryRedis) Consume(ctx context.Context, req domain.ConsumeRequest) (domain.ConsumeResult, error) {
	nextReset := ""
	if req.NextReset != nil {
		nextReset = strconv.FormatInt(req.NextReset.UnixMilli(), 10)
	}
	limit := ""
	if req.Limit != nil {
		limit = strconv.Itoa(*req.Limit)
	}
	raw, err := consumeScript.Run(ctx, r.client, []string{r.key(req.UserID)},
		strconv.FormatInt(req.Now.UnixMilli(), 10), nextReset, limit).Slice()
	if err != nil {
		return domain.ConsumeResult{}, fmt.Errorf("consume usage ledger: %w", err)
	}
	if len(raw) != 4 {
		return domain.ConsumeResult{}, fmt.Errorf("consume usage ledger: unexpected reply %v", raw)
	}

	admitted, _ := raw[0].(int64)
	count, _ := raw[1].(int64)
	rolled, _ := raw[3].(int64)
	resetRaw, _ := raw[2].(string)
	resetAt, err := parseMillis(resetRaw)
	if err != nil {
		return domain.ConsumeResult{}, fmt.Errorf("consume usage ledger: %w", err)
	}
	return domain.ConsumeResult{
		Admitted: admitted == 1,
		Count:    int(count),
		ResetAt:  resetAt,
		Rolled:   rolled == 1,
	}, nil
}

func (r *LedgerRepositoryRedis) Get(ctx context.Context, userID string) (domain.UsageLedger, error) {
	fields, err := r.client.HGetAll(ctx, r.key(userID)).Result()
	if err != nil {
		return domain.UsageLedger{}, fmt.Errorf("select usage ledger: %w", err)
	}
	ledger := domain.UsageLedger{UserID: userID}
	if v := fields["count"]; v != "" {
		if ledger.Count, err = strconv.Atoi(v); err != nil {
			return domain.UsageLedger{}, fmt.Errorf("select usage ledger: count: %w", err)
		}
	}
	if ledger.ResetAt, err = parseMillis(fields["reset_at"]); err != nil {
		return domain.UsageLedger{}, fmt.Errorf("select usage ledger: %w", err)
	}
	if updated, _ := parseMillis(fields["updated_at"]); updated != nil {
		ledger.UpdatedAt = *updated
	}
	return ledger, nil
}

func (r *LedgerRepositoryRedis) Reset(ctx context.Context, userID string) error {
	key := r.key(userID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "count", 0, "updated_at", strconv.FormatInt(time.Now().UnixMilli(), 10))
		pipe.HDel(ctx, key, "reset_at")
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset usage ledger: %w", err)
	}
	return nil
}

func parseMillis(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

var _ domain.LedgerStore = (*LedgerRepositoryRedis)(nil)
