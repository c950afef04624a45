package document

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/ceyewan/kmis/db"
	"github.com/ceyewan/kmis/xerrors"
)

// ListFilter 列表查询条件，零值字段不参与过滤
type ListFilter struct {
	UnitID  string
	OwnerID string
	Status  Status
	Tag     string
	Offset  int
	Limit   int
}

// Repository 文档持久化
type Repository interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	// GetMany 按 ID 批量读取，不存在的 ID 被忽略
	GetMany(ctx context.Context, ids []string) ([]*Document, error)
	// List 返回 actor 可见的文档与满足条件的总数
	List(ctx context.Context, actor Actor, filter ListFilter) ([]*Document, int64, error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id string) error
	// KeywordSearch 在标题、描述与正文中做不区分大小写的子串匹配，只返回 actor 可见的文档
	KeywordSearch(ctx context.Context, actor Actor, query string, limit int) ([]*Document, error)
	// ListForProcessing 按更新时间升序返回指定状态且尝试次数小于 maxAttempts 的文档
	ListForProcessing(ctx context.Context, status Status, maxAttempts, limit int) ([]*Document, error)
}

type gormRepository struct {
	db db.DB
}

// NewRepository 基于 db.DB 创建 Repository
func NewRepository(d db.DB) Repository {
	return &gormRepository{db: d}
}

// Migrate 创建或更新 documents 表
func Migrate(ctx context.Context, d db.DB) error {
	return d.AutoMigrate(ctx, &Document{})
}

func (r *gormRepository) Create(ctx context.Context, doc *Document) error {
	if err := r.db.DB(ctx).Create(doc).Error; err != nil {
		return xerrors.Wrap(err, "document: create")
	}
	return nil
}

func (r *gormRepository) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := r.db.DB(ctx).Where("id = ?", id).Take(&doc).Error
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "document: get")
	}
	return &doc, nil
}

func (r *gormRepository) GetMany(ctx context.Context, ids []string) ([]*Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var docs []*Document
	if err := r.db.DB(ctx).Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, xerrors.Wrap(err, "document: get many")
	}
	return docs, nil
}

func (r *gormRepository) List(ctx context.Context, actor Actor, f ListFilter) ([]*Document, int64, error) {
	q := r.db.DB(ctx).Model(&Document{}).Scopes(visibleTo(actor))
	if f.UnitID != "" {
		q = q.Where("unit_id = ?", f.UnitID)
	}
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Tag != "" {
		// tags 以 JSON 数组存储且已规范化，按带引号的元素匹配
		q = q.Where("tags LIKE ? ESCAPE '!'", `%"`+escapeLike(f.Tag)+`"%`)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, xerrors.Wrap(err, "document: count")
	}

	var docs []*Document
	err := q.Order("created_at DESC").Order("id DESC").
		Offset(f.Offset).Limit(f.Limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, xerrors.Wrap(err, "document: list")
	}
	return docs, total, nil
}

func (r *gormRepository) Update(ctx context.Context, doc *Document) error {
	res := r.db.DB(ctx).Model(doc).Select("*").Omit("id", "created_at").Updates(doc)
	if res.Error != nil {
		return xerrors.Wrap(res.Error, "document: update")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.DB(ctx).Where("id = ?", id).Delete(&Document{})
	if res.Error != nil {
		return xerrors.Wrap(res.Error, "document: delete")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) KeywordSearch(ctx context.Context, actor Actor, query string, limit int) ([]*Document, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"

	var docs []*Document
	err := r.db.DB(ctx).Scopes(visibleTo(actor)).
		Where("LOWER(title) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!' OR LOWER(content) LIKE ? ESCAPE '!'",
			pattern, pattern, pattern).
		Order("updated_at DESC").
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, xerrors.Wrap(err, "document: keyword search")
	}
	return docs, nil
}

func (r *gormRepository) ListForProcessing(ctx context.Context, status Status, maxAttempts, limit int) ([]*Document, error) {
	var docs []*Document
	err := r.db.DB(ctx).
		Where("status = ? AND processing_attempts < ?", status, maxAttempts).
		Order("updated_at ASC").
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, xerrors.Wrap(err, "document: list for processing")
	}
	return docs, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
