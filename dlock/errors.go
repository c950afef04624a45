package dlock

import "github.com/ceyewan/kmis/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: config is nil")

	// ErrConnectorNil 分布式模式缺少 Redis 连接器
	ErrConnectorNil = xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: redis connector is nil")

	// ErrKeyEmpty 锁键为空
	ErrKeyEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: key is empty")

	// ErrLockNotHeld 本实例未持有该锁
	ErrLockNotHeld = xerrors.New("dlock: lock not held")

	// ErrOwnershipLost 锁已过期并被他人获取
	ErrOwnershipLost = xerrors.New("dlock: ownership lost")
)
