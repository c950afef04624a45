package docai

import "context"

// Client 文档检索 SaaS 的客户端
//
// 所有失败都以可被 breaker.Classify 分类的错误返回：非 2xx 响应为
// *breaker.TransportError，无法解析的响应体包装 breaker.ErrInvalidResponse。
type Client interface {
	// IndexDocument 提交文档并返回供应商侧 ID
	IndexDocument(ctx context.Context, req IndexRequest) (*IndexResult, error)
	// GetDocument 查询供应商侧的索引状态
	GetDocument(ctx context.Context, externalID string) (*IndexResult, error)
	// DeleteDocument 删除供应商侧的文档
	DeleteDocument(ctx context.Context, externalID string) error
	// Search 语义检索
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// IndexRequest 索引请求
type IndexRequest struct {
	DocumentID string            `json:"document_id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	MimeType   string            `json:"mime_type,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IndexStatus 供应商侧的处理状态
type IndexStatus string

const (
	IndexStatusPending IndexStatus = "pending"
	IndexStatusReady   IndexStatus = "ready"
	IndexStatusFailed  IndexStatus = "failed"
)

// IndexResult 索引结果
type IndexResult struct {
	ExternalID string      `json:"id"`
	DocumentID string      `json:"document_id"`
	Status     IndexStatus `json:"status"`
}

// SearchRequest 检索请求，Filters 按元数据精确匹配
type SearchRequest struct {
	Query   string            `json:"query"`
	TopK    int               `json:"top_k,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// SearchHit 单条命中
type SearchHit struct {
	DocumentID string  `json:"document_id"`
	ExternalID string  `json:"id"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

// SearchResponse 检索结果
type SearchResponse struct {
	Hits []SearchHit `json:"results"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
