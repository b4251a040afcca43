package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// incrWindow increments the counter and starts its expiry on first use.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisLimiter shares the fixed-window counters between server processes.
type RedisLimiter struct {
	client redis.Scripter
	opts   Options
	prefix string
}

func NewRedisLimiter(client redis.Scripter, opts Options) *RedisLimiter {
	return &RedisLimiter{client: client, opts: opts, prefix: "sealchat:ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID int64) (bool, error) {
	key := l.prefix + strconv.FormatInt(userID, 10)
	n, err := incrWindow.Run(ctx, l.client, []string{key}, l.opts.Window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}
	return n <= int64(l.opts.Max), nil
}
