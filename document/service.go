// Package document 实现知识库文档的管理与检索。
//
// 文档保存在本地数据库，并提交给托管检索服务建立索引。所有对检索服务的调用都经过
// breaker.Guard：服务不可用时文档标记为 not_processed 并由 Reprocessor 在之后重新提交，
// 检索请求降级为本地关键字匹配，而不是让用户请求失败。
package document

import (
	"context"
	"slices"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/ceyewan/kmis/breaker"
	"github.com/ceyewan/kmis/cache"
	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/docai"
	"github.com/ceyewan/kmis/idgen"
	"github.com/ceyewan/kmis/xerrors"
)

// Service 文档服务，可并发使用
type Service struct {
	repo    Repository
	client  docai.Client
	guard   *breaker.Guard
	cfg     Config
	logger  clog.Logger
	cache   cache.Cache
	ids     idgen.Generator
	now     func() time.Time
	metrics *serviceMetrics

	// searchGen 参与检索缓存键，任何文档变更都会使旧结果失效
	searchGen atomic.Uint64
}

// NewService 创建文档服务
func NewService(repo Repository, client docai.Client, guard *breaker.Guard, cfg *Config, opts ...Option) (*Service, error) {
	if repo == nil || client == nil || guard == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "document: repository, client and guard are required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	m, err := newServiceMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	return &Service{
		repo:    repo,
		client:  client,
		guard:   guard,
		cfg:     c,
		logger:  o.logger,
		cache:   o.cache,
		ids:     o.ids,
		now:     o.now,
		metrics: m,
	}, nil
}

// CreateInput 新建文档
type CreateInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	FileName    string     `json:"file_name"`
	MimeType    string     `json:"mime_type"`
	Content     string     `json:"content"`
	Tags        []string   `json:"tags"`
	Visibility  Visibility `json:"visibility"`
	// UnitID 留空时归属创建者所在单位；只有管理员可以指定其他单位
	UnitID string `json:"unit_id"`
}

// Create 保存文档并提交索引。
//
// 检索服务不可用不会导致创建失败，文档以 not_processed 状态返回；
// 文档一经保存即返回成功，索引结果写回失败只记录日志。
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*Document, error) {
	if in.Visibility == "" {
		in.Visibility = VisibilityUnit
	}
	if err := s.validate(in.Title, in.Content, in.Visibility); err != nil {
		return nil, err
	}

	unitID := actor.UnitID
	if in.UnitID != "" && in.UnitID != actor.UnitID {
		if !actor.IsAdmin() {
			return nil, ErrForbidden
		}
		unitID = in.UnitID
	}

	now := s.now()
	doc := &Document{
		ID:          s.ids.Next(),
		Title:       in.Title,
		Description: in.Description,
		UnitID:      unitID,
		OwnerID:     actor.UserID,
		FileName:    in.FileName,
		MimeType:    in.MimeType,
		Content:     in.Content,
		Tags:        NormalizeTags(in.Tags),
		Visibility:  in.Visibility,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "document created",
		clog.String("document_id", doc.ID), clog.String("owner_id", doc.OwnerID), clog.String("unit_id", doc.UnitID))

	// 文档已经保存，处理结果落库失败不影响创建
	if err := s.index(ctx, doc); err != nil {
		s.logger.ErrorContext(ctx, "persist indexing result failed",
			clog.String("document_id", doc.ID), clog.Error(err))
	}
	return doc, nil
}

// Get 读取文档，不可见时返回 ErrNotFound
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(doc) {
		return nil, ErrNotFound
	}
	return doc, nil
}

// ListQuery 列表查询，Page 从 1 开始
type ListQuery struct {
	UnitID   string
	OwnerID  string
	Status   Status
	Tag      string
	Page     int
	PageSize int
}

// Page 分页结果
type Page struct {
	Items    []*Document `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// List 返回 actor 可见的文档
func (s *Service) List(ctx context.Context, actor Actor, q ListQuery) (*Page, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, invalid("unknown status %q", q.Status)
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = s.cfg.DefaultPageSize
	}
	if q.PageSize > s.cfg.MaxPageSize {
		q.PageSize = s.cfg.MaxPageSize
	}

	var tag string
	if tags := NormalizeTags([]string{q.Tag}); len(tags) == 1 {
		tag = tags[0]
	}

	items, total, err := s.repo.List(ctx, actor, ListFilter{
		UnitID:  q.UnitID,
		OwnerID: q.OwnerID,
		Status:  q.Status,
		Tag:     tag,
		Offset:  (q.Page - 1) * q.PageSize,
		Limit:   q.PageSize,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Document{}
	}
	return &Page{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// UpdateInput 修改文档，nil 字段保持不变
type UpdateInput struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	Content     *string     `json:"content"`
	Tags        *[]string   `json:"tags"`
	Visibility  *Visibility `json:"visibility"`
}

// Update 修改文档。标题、描述、正文或标签变化时重新提交索引
func (s *Service) Update(ctx context.Context, actor Actor, id string, in UpdateInput) (*Document, error) {
	doc, err := s.editable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	reindex := false
	if in.Title != nil && *in.Title != doc.Title {
		doc.Title, reindex = *in.Title, true
	}
	if in.Description != nil && *in.Description != doc.Description {
		doc.Description, reindex = *in.Description, true
	}
	if in.Content != nil && *in.Content != doc.Content {
		doc.Content, reindex = *in.Content, true
	}
	if in.Tags != nil {
		tags := NormalizeTags(*in.Tags)
		if !slices.Equal(tags, doc.Tags) {
			doc.Tags, reindex = tags, true
		}
	}
	if in.Visibility != nil {
		doc.Visibility = *in.Visibility
	}
	if err := s.validate(doc.Title, doc.Content, doc.Visibility); err != nil {
		return nil, err
	}

	if reindex {
		doc.ProcessingAttempts = 0
		if err := s.index(ctx, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	doc.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, doc); err != nil {
		return nil, err
	}
	s.invalidateSearch()
	return doc, nil
}

// Delete 删除文档。
//
// 先删除检索服务中的副本：对方已不存在时忽略，服务不可用时只记录日志，
// 本地删除照常进行，残留的检索结果在解析时会被丢弃。
func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	doc, err := s.editable(ctx, actor, id)
	if err != nil {
		return err
	}

	if doc.ExternalID != "" {
		out, err := breaker.Call(ctx, s.guard, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.client.DeleteDocument(ctx, doc.ExternalID)
		})
		cerr := callError(out.Err, err)
		if cerr != nil && cerr.Kind != breaker.KindDocumentNotFound {
			s.logger.WarnContext(ctx, "vendor delete failed, removing local copy only",
				clog.String("document_id", doc.ID),
				clog.String("external_id", doc.ExternalID),
				clog.String("kind", cerr.Kind.String()))
		}
	}

	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		return err
	}
	s.invalidateSearch()
	s.logger.InfoContext(ctx, "document deleted", clog.String("document_id", doc.ID))
	return nil
}

// Reindex 手动重新提交索引，并清零尝试次数
func (s *Service) Reindex(ctx context.Context, actor Actor, id string) (*Document, error) {
	doc, err := s.editable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	doc.ProcessingAttempts = 0
	if err := s.index(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// VendorStatus 检索服务熔断器的当前快照
func (s *Service) VendorStatus() breaker.Snapshot {
	return s.guard.Snapshot()
}

// ResetVendor 手动关闭熔断器，检索服务恢复后由运维触发
func (s *Service) ResetVendor() {
	s.guard.Reset()
}

func (s *Service) editable(ctx context.Context, actor Actor, id string) (*Document, error) {
	doc, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanEdit(doc) {
		return nil, ErrForbidden
	}
	return doc, nil
}

func (s *Service) validate(title, content string, v Visibility) error {
	switch {
	case title == "":
		return invalid("title is required")
	case utf8.RuneCountInString(title) > 255:
		return invalid("title is longer than 255 characters")
	case content == "":
		return invalid("content is required")
	case len(content) > s.cfg.MaxContentBytes:
		return invalid("content exceeds %d bytes", s.cfg.MaxContentBytes)
	case !v.Valid():
		return invalid("unknown visibility %q", v)
	}
	return nil
}

// callError 统一 Call 的两种失败形式：降级时的 Outcome.Err 与不降级时返回的 error
func callError(outErr *breaker.Error, err error) *breaker.Error {
	if err != nil {
		return breaker.Classify(err)
	}
	return outErr
}
