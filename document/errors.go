package document

import "github.com/ceyewan/kmis/xerrors"

var (
	// ErrNotFound 文档不存在，或对当前用户不可见
	ErrNotFound = xerrors.Wrap(xerrors.ErrNotFound, "document: not found")
	// ErrForbidden 可见但无权修改
	ErrForbidden = xerrors.Wrap(xerrors.ErrForbidden, "document: forbidden")
	// ErrInvalidInput 输入校验失败
	ErrInvalidInput = xerrors.Wrap(xerrors.ErrInvalidInput, "document: invalid input")
)

func invalid(format string, args ...any) error {
	return xerrors.Wrapf(ErrInvalidInput, format, args...)
}
