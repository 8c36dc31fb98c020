package counter

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const submissionsKey = "claims:counters:submissions"

// SubmissionCounters keeps submission event totals in a Redis hash so every
// replica contributes to the same numbers.
type SubmissionCounters struct {
	rdb *redis.Client
	key string
}

// NewSubmissionCounters creates counters stored under the default key
func NewSubmissionCounters(rdb *redis.Client) *SubmissionCounters {
	return &SubmissionCounters{rdb: rdb, key: submissionsKey}
}

// Incr increments the counter for event. Failures are logged only; counting
// never blocks a submission.
func (c *SubmissionCounters) Incr(ctx context.Context, event string) {
	if err := c.rdb.HIncrBy(ctx, c.key, event, 1).Err(); err != nil {
		log.Warnf("[Counters] increment %s failed: %v", event, err)
	}
}

// Snapshot returns all counters
func (c *SubmissionCounters) Snapshot(ctx context.Context) (map[string]int64, error) {
	data, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}
