package document

import (
	"slices"
	"strings"
	"time"
)

// Status 文档在本地的处理状态
type Status string

const (
	// StatusPending 已保存，尚未提交给检索服务
	StatusPending Status = "pending"
	// StatusProcessing 检索服务已接收，仍在处理
	StatusProcessing Status = "processing"
	// StatusIndexed 检索服务已完成索引
	StatusIndexed Status = "indexed"
	// StatusNotProcessed 检索服务暂不可用，等待后台重新提交
	StatusNotProcessed Status = "not_processed"
	// StatusFailed 检索服务拒绝了该文档，重试无意义
	StatusFailed Status = "failed"
)

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusIndexed, StatusNotProcessed, StatusFailed:
		return true
	default:
		return false
	}
}

// Visibility 文档可见范围
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityUnit    Visibility = "unit"
	VisibilityPrivate Visibility = "private"
)

// Valid 是否为已知可见范围
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnit, VisibilityPrivate:
		return true
	default:
		return false
	}
}

// Document 知识库中的一份文档
type Document struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	UnitID      string     `gorm:"size:64;index" json:"unit_id"`
	OwnerID     string     `gorm:"size:64;index" json:"owner_id"`
	FileName    string     `gorm:"size:255" json:"file_name,omitempty"`
	MimeType    string     `gorm:"size:128" json:"mime_type,omitempty"`
	Content     string     `gorm:"type:text" json:"content,omitempty"`
	Tags        []string   `gorm:"serializer:json;type:text" json:"tags"`
	Visibility  Visibility `gorm:"size:16;index;not null" json:"visibility"`

	Status             Status     `gorm:"size:16;index;not null" json:"status"`
	ExternalID         string     `gorm:"size:128;index" json:"external_id,omitempty"`
	ProcessingError    string     `gorm:"type:text" json:"processing_error,omitempty"`
	ProcessingAttempts int        `gorm:"not null;default:0" json:"processing_attempts"`
	IndexedAt          *time.Time `json:"indexed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 固定表名
func (Document) TableName() string {
	return "documents"
}

// NormalizeTags 去掉首尾空白、转小写、去重并丢弃空标签，保持首次出现的顺序。
// 结果永远不为 nil，存储为 JSON 数组 "[]" 而不是 "null"
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}
