package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ariefcatur/go-shop-settlement/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache keeps the last complete report in redis. Concurrent misses share one
// computation. Degraded reports are served but never stored, and redis
// failures fall through to a fresh report.
type Cache struct {
	reporter *Reporter
	rdb      *redis.Client
	ttl      time.Duration
	group    singleflight.Group
	log      zerolog.Logger
}

func NewCache(reporter *Reporter, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{reporter: reporter, rdb: rdb, ttl: ttl, log: log}
}

func (c *Cache) Report(ctx context.Context) Report {
	if c.rdb == nil || c.ttl <= 0 {
		return c.reporter.Report(ctx)
	}

	raw, err := c.rdb.Get(ctx, redisx.KeyDashboard).Bytes()
	if err == nil {
		var rep Report
		if err := json.Unmarshal(raw, &rep); err == nil {
			return rep
		}
		c.log.Warn().Msg("dashboard cache entry unreadable, recomputing")
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Msg("dashboard cache read failed")
	}

	v, _, _ := c.group.Do(redisx.KeyDashboard, func() (any, error) {
		rep := c.reporter.Report(ctx)
		if rep.Degraded {
			return rep, nil
		}
		if b, err := json.Marshal(rep); err == nil {
			if err := c.rdb.Set(ctx, redisx.KeyDashboard, b, c.ttl).Err(); err != nil {
				c.log.Warn().Err(err).Msg("dashboard cache write failed")
			}
		}
		return rep, nil
	})
	return v.(Report)
}

// Invalidate drops the cached report; the next request recomputes.
func Invalidate(ctx context.Context, rdb *redis.Client) error {
	return rdb.Del(ctx, redisx.KeyDashboard).Err()
}
