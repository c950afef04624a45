package config

import "github.com/ceyewan/kmis/xerrors"

// ErrValidationFailed 配置为空或校验失败
var ErrValidationFailed = xerrors.Wrap(xerrors.ErrInvalidInput, "config: validation failed")
