package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/connector"
	"github.com/ceyewan/kmis/metrics"
	"github.com/ceyewan/kmis/xerrors"
)

// luaScript 令牌桶算法的 Lua 脚本
const luaScript = `
-- 令牌桶算法的纯时间戳实现 (Token Bucket with Timestamp)
-- KEYS[1]: 限流器的唯一键
-- ARGV[1]: 速率 (rate, 每秒允许的请求数)
-- ARGV[2]: 桶容量 (capacity, 峰值/并发容量)
-- ARGV[3]: 当前时间戳 (now, 浮点数，秒.毫秒)
-- ARGV[4]: 本次请求需要消耗的令牌数 (tokens_to_consume)

local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

-- 每个令牌代表的时间间隔（秒）
local interval_per_token = 1 / rate
-- 桶装满所需要的时间
local fill_time = capacity * interval_per_token

-- 获取上一次的状态（即下一次允许放行的时间戳）
local last_refreshed = tonumber(redis.call("GET", KEYS[1]))
if last_refreshed == nil then
  last_refreshed = now
end

-- 计算理论上的下一次放行时间
local next_available_time = math.max(last_refreshed, now)

-- 判断是否允许请求
local new_refreshed = next_available_time + requested * interval_per_token
local allow_at_most = now + fill_time

if new_refreshed <= allow_at_most then
  -- 令牌足够，请求被允许
  redis.call("SET", KEYS[1], new_refreshed, "EX", math.ceil(fill_time * 2))
  
  -- 计算剩余可用令牌数
  local remaining_tokens = math.floor((allow_at_most - new_refreshed) / interval_per_token)
  
  return {1, remaining_tokens}
else
  -- 令牌不足，拒绝请求
  local remaining_tokens = math.floor((allow_at_most - next_available_time) / interval_per_token)
  
  return {0, remaining_tokens}
end
`

type distributedLimiter struct {
	conn    connector.RedisConnector
	prefix  string
	logger  clog.Logger
	metrics *limiterMetrics
	script  *redis.Script
}

func newDistributed(cfg *Config, conn connector.RedisConnector, logger clog.Logger, m *limiterMetrics) *distributedLimiter {
	return &distributedLimiter{
		conn:    conn,
		prefix:  cfg.Prefix,
		logger:  logger,
		metrics: m,
		script:  redis.NewScript(luaScript),
	}
}

func (l *distributedLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *distributedLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if !limit.Valid() || n <= 0 {
		return false, ErrInvalidLimit
	}

	client := l.conn.GetClient()
	if client == nil {
		return false, connector.ErrClientNil
	}

	// 当前时间戳（秒.毫秒）
	now := float64(time.Now().UnixNano()) / 1e9

	result, err := l.script.Run(ctx, client, []string{l.prefix + key}, limit.Rate, limit.Burst, now, n).Result()
	if err != nil {
		l.metrics.errors.Inc(ctx, metrics.L(LabelMode, ModeDistributed))
		l.logger.ErrorContext(ctx, "failed to execute lua script", clog.String("key", key), clog.Error(err))
		return false, xerrors.Wrap(err, "ratelimit: execute lua script")
	}

	values, ok := result.([]any)
	if !ok || len(values) != 2 {
		return false, xerrors.New("ratelimit: invalid lua script result")
	}
	flag, ok := values[0].(int64)
	if !ok {
		return false, xerrors.New("ratelimit: invalid allowed value")
	}
	remaining, _ := values[1].(int64)

	allowed := flag == 1
	l.metrics.record(ctx, allowed)
	l.logger.DebugContext(ctx, "rate limit check",
		clog.String("key", key),
		clog.Bool("allowed", allowed),
		clog.Int64("remaining", remaining),
		clog.Float64("rate", limit.Rate),
		clog.Int("burst", limit.Burst),
		clog.Int("requested", n))

	return allowed, nil
}

// Close 连接由 Connector 管理，这里无需释放
func (l *distributedLimiter) Close() error {
	return nil
}
