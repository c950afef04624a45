package idem

import "github.com/ceyewan/kmis/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.Wrap(xerrors.ErrInvalidInput, "idem: config is nil")

	// ErrConnectorNil 分布式模式缺少 Redis 连接器
	ErrConnectorNil = xerrors.Wrap(xerrors.ErrInvalidInput, "idem: redis connector is nil")

	// ErrResultNotFound 结果不存在（内部使用）
	ErrResultNotFound = xerrors.New("idem: result not found")
)
