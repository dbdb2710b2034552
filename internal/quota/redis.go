package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys expire well after their month ends so stats stay readable for a while.
const keyTTL = 40 * 24 * time.Hour

var recordScript = redis.NewScript(`
local used = tonumber(redis.call('HGET', KEYS[1], 'micros') or '0')
local requests = tonumber(redis.call('HGET', KEYS[1], 'requests') or '0')
if used >= tonumber(ARGV[1]) then
  return {0, used, requests}
end
used = redis.call('HINCRBY', KEYS[1], 'micros', ARGV[2])
requests = redis.call('HINCRBY', KEYS[1], 'requests', 1)
redis.call('EXPIRE', KEYS[1], ARGV[3])
return {1, used, requests}
`)

// Redis shares one counter across every process pointed at the same
// server. The check-and-increment runs as a single Lua script.
type Redis struct {
	rdb    *redis.Client
	limit  int64
	prefix string
	clock  func() time.Time
}

func NewRedis(rdb *redis.Client, limitUSD float64, clock func() time.Time) *Redis {
	if clock == nil {
		clock = time.Now
	}
	return &Redis{rdb: rdb, limit: fromUSD(limitUSD), prefix: "helpem:usage:", clock: clock}
}

func (r *Redis) key() string {
	return r.prefix + period(r.clock())
}

func (r *Redis) load(ctx context.Context) (used, requests int64, err error) {
	vals, err := r.rdb.HMGet(ctx, r.key(), "micros", "requests").Result()
	if err != nil {
		return 0, 0, fmt.Errorf("reading usage: %w", err)
	}
	return parseCounter(vals[0]), parseCounter(vals[1]), nil
}

func (r *Redis) Check(ctx context.Context) (Status, error) {
	used, _, err := r.load(ctx)
	if err != nil {
		return Status{}, err
	}
	return status(used, r.limit), nil
}

func (r *Redis) Record(ctx context.Context, u Usage) (Status, error) {
	res, err := recordScript.Run(ctx, r.rdb,
		[]string{r.key()},
		r.limit, u.Cost(), int64(keyTTL/time.Second),
	).Int64Slice()
	if err != nil {
		return Status{}, fmt.Errorf("recording usage: %w", err)
	}
	return decodeRecord(res, r.limit)
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	used, requests, err := r.load(ctx)
	if err != nil {
		return Stats{}, err
	}
	return stats(r.clock(), used, r.limit, requests), nil
}

func decodeRecord(res []int64, limit int64) (Status, error) {
	if len(res) != 3 {
		return Status{}, fmt.Errorf("recording usage: unexpected script reply %v", res)
	}
	st := status(res[1], limit)
	if res[0] == 0 {
		return st, ErrExceeded
	}
	return st, nil
}

func parseCounter(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int64
	fmt.Sscan(s, &n)
	return n
}
