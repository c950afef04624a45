package idem

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/kmis/xerrors"
)

var (
	unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

	// 写结果与释放处理中标记在同一脚本内完成
	setResultScript = redis.NewScript(`
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
if redis.call("GET", KEYS[2]) == ARGV[3] then
	redis.call("DEL", KEYS[2])
end
return 1
`)
)

// redisStore Redis 存储，多副本共享
type redisStore struct {
	client redis.UniversalClient
	prefix string
}

func newRedisStore(client redis.UniversalClient, prefix string) *redisStore {
	return &redisStore{client: client, prefix: prefix}
}

func (rs *redisStore) Lock(ctx context.Context, key string, ttl time.Duration) (LockToken, bool, error) {
	token, err := newLockToken()
	if err != nil {
		return "", false, err
	}
	ok, err := rs.client.SetNX(ctx, rs.prefix+key+lockSuffix, string(token), ttl).Result()
	if err != nil {
		return "", false, xerrors.Wrap(err, "idem: acquire lock")
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (rs *redisStore) Unlock(ctx context.Context, key string, token LockToken) error {
	if err := unlockScript.Run(ctx, rs.client, []string{rs.prefix + key + lockSuffix}, string(token)).Err(); err != nil {
		return xerrors.Wrap(err, "idem: release lock")
	}
	return nil
}

func (rs *redisStore) SetResult(ctx context.Context, key string, val []byte, ttl time.Duration, token LockToken) error {
	keys := []string{rs.prefix + key + resultSuffix, rs.prefix + key + lockSuffix}
	if err := setResultScript.Run(ctx, rs.client, keys, val, ttl.Milliseconds(), string(token)).Err(); err != nil {
		return xerrors.Wrap(err, "idem: set result")
	}
	return nil
}

func (rs *redisStore) GetResult(ctx context.Context, key string) ([]byte, error) {
	b, err := rs.client.Get(ctx, rs.prefix+key+resultSuffix).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "idem: get result")
	}
	return b, nil
}
