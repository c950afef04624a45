// Package serializer 为缓存值提供 JSON 与 MessagePack 两种编码
package serializer

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/kmis/xerrors"
)

// ErrUnsupportedSerializer 不支持的序列化器类型
var ErrUnsupportedSerializer = xerrors.Wrap(xerrors.ErrInvalidInput, "unsupported serializer type")

// Serializer 序列化接口
type Serializer interface {
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
	Name() string
}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(value any) ([]byte, error)     { return json.Marshal(value) }
func (jsonSerializer) Unmarshal(data []byte, dest any) error { return json.Unmarshal(data, dest) }
func (jsonSerializer) Name() string                          { return "json" }

// msgpackSerializer 体积更小，字段按 msgpack 标签编码
type msgpackSerializer struct{}

func (msgpackSerializer) Marshal(value any) ([]byte, error) {
	return msgpack.Marshal(value)
}

func (msgpackSerializer) Unmarshal(data []byte, dest any) error {
	return msgpack.Unmarshal(data, dest)
}

func (msgpackSerializer) Name() string { return "msgpack" }

// New 按名称创建序列化器："json"（默认）或 "msgpack"
func New(name string) (Serializer, error) {
	switch name {
	case "json", "":
		return jsonSerializer{}, nil
	case "msgpack":
		return msgpackSerializer{}, nil
	default:
		return nil, xerrors.Wrapf(ErrUnsupportedSerializer, "%q", name)
	}
}
