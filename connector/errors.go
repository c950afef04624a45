package connector

import "github.com/ceyewan/kmis/xerrors"

// 连接器的哨兵错误
var (
	ErrConfig      = xerrors.Wrap(xerrors.ErrInvalidInput, "connector: invalid config")
	ErrConnection  = xerrors.Wrap(xerrors.ErrUnavailable, "connector: connection failed")
	ErrClientNil   = xerrors.New("connector: client not connected")
	ErrHealthCheck = xerrors.Wrap(xerrors.ErrUnavailable, "connector: health check failed")
)
