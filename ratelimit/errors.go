package ratelimit

import "github.com/ceyewan/kmis/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: config is nil")

	// ErrConnectorNil 分布式模式缺少 Redis 连接器
	ErrConnectorNil = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: redis connector is nil")

	// ErrKeyEmpty 限流键为空
	ErrKeyEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: key is empty")

	// ErrInvalidLimit 限流规则无效
	ErrInvalidLimit = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: invalid limit")
)
