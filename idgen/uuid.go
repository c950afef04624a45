// Package idgen 提供 ID 生成能力。
//
// 默认使用 UUID v7：按时间有序，适合作为数据库主键，
// 同时可以在多个实例上独立生成而不需要协调。
package idgen

import (
	"github.com/google/uuid"
)

// Generator 字符串 ID 生成器
type Generator interface {
	Next() string
}

// GeneratorFunc 函数适配 Generator
type GeneratorFunc func() string

func (f GeneratorFunc) Next() string { return f() }

// NewUUIDV7 生成 UUID v7 (时间排序)
//
//	uid := idgen.NewUUIDV7()
func NewUUIDV7() string {
	v7, err := uuid.NewV7()
	if err != nil {
		// 随机源不可用时退回 v4，uuid.New 会 panic
		return uuid.New().String()
	}
	return v7.String()
}

// NewUUIDV4 生成 UUID v4 (随机)
func NewUUIDV4() string {
	return uuid.New().String()
}

// UUID UUID 生成器，默认 v7
type UUID struct {
	version string
}

// UUIDOption UUID 初始化选项
type UUIDOption func(*UUID)

// NewUUID 创建 UUID 生成器
//
//	gen := idgen.NewUUID()
//	uid := gen.Next()
func NewUUID(opts ...UUIDOption) *UUID {
	u := &UUID{version: "v7"}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// WithUUIDVersion 设置 UUID 版本: "v4" | "v7"
func WithUUIDVersion(version string) UUIDOption {
	return func(u *UUID) {
		u.version = version
	}
}

// Next 生成 UUID 字符串
func (u *UUID) Next() string {
	if u.version == "v4" {
		return NewUUIDV4()
	}
	return NewUUIDV7()
}

// Valid 判断字符串是否为合法 UUID
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
