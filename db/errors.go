package db

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ceyewan/kmis/xerrors"
)

var (
	// ErrConnectorNil 连接器为空或尚未 Connect
	ErrConnectorNil = xerrors.Wrap(xerrors.ErrInvalidInput, "db: connector is nil or not connected")
)

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
