package idem

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/ceyewan/kmis/xerrors"
)

// Store 幂等状态存储。一个键有三种状态：不存在、处理中（Lock 成功）、已完成（SetResult 之后）
type Store interface {
	// Lock 标记处理中。已被占用时返回 false
	Lock(ctx context.Context, key string, ttl time.Duration) (LockToken, bool, error)

	// Unlock 清除处理中标记，只有持有 token 的一方能清除
	Unlock(ctx context.Context, key string, token LockToken) error

	// SetResult 保存结果并清除处理中标记
	SetResult(ctx context.Context, key string, val []byte, ttl time.Duration, token LockToken) error

	// GetResult 读取已完成的结果，不存在时返回 ErrResultNotFound
	GetResult(ctx context.Context, key string) ([]byte, error)
}

// LockToken 处理中标记的持有凭证
type LockToken string

const (
	lockSuffix   = ":lock"
	resultSuffix = ":result"
)

func newLockToken() (LockToken, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", xerrors.Wrap(err, "idem: generate lock token")
	}
	return LockToken(hex.EncodeToString(b)), nil
}
