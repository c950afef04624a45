package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ceyewan/kmis/breaker"
	"github.com/ceyewan/kmis/cache"
	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/docai"
)

// 检索结果来源
const (
	SourceVendor = "vendor"
	SourceLocal  = "local"
	sourceCache  = "cache"
)

const (
	maxQueryRunes = 512
	snippetRunes  = 160
)

// SearchQuery 检索请求，TopK 为 0 时使用配置的默认值
type SearchQuery struct {
	Query string
	TopK  int
}

// SearchHit 解析到本地文档的命中
type SearchHit struct {
	Document *Document `json:"document"`
	Score    float64   `json:"score"`
	Snippet  string    `json:"snippet,omitempty"`
}

// SearchResult 检索结果。Degraded 为 true 时结果来自本地关键字匹配，Reason 是检索服务的错误分类
type SearchResult struct {
	Query    string      `json:"query"`
	Hits     []SearchHit `json:"hits"`
	Source   string      `json:"source"`
	Degraded bool        `json:"degraded"`
	Reason   string      `json:"reason,omitempty"`
	Cached   bool        `json:"cached"`
}

// searchAnswer 是 CallWithFallback 的结果：主路径得到供应商命中，降级路径得到本地命中
type searchAnswer struct {
	vendor []docai.SearchHit
	local  []SearchHit
}

// Search 语义检索，检索服务不可用时降级为本地关键字匹配。
//
// 供应商结果按 (查询, TopK) 缓存；命中在每次请求时重新解析到本地文档并按 actor 过滤，
// 所以缓存可以在用户之间共享。
func (s *Service) Search(ctx context.Context, actor Actor, q SearchQuery) (*SearchResult, error) {
	query := strings.TrimSpace(q.Query)
	switch {
	case query == "":
		return nil, invalid("query is required")
	case utf8.RuneCountInString(query) > maxQueryRunes:
		return nil, invalid("query is longer than %d characters", maxQueryRunes)
	}
	topK := q.TopK
	if topK <= 0 {
		topK = s.cfg.SearchTopK
	}
	topK = min(topK, s.cfg.MaxSearchTopK)

	key := s.searchKey(query, topK)
	if hits, ok := s.cachedHits(ctx, key); ok {
		resolved, err := s.resolve(ctx, actor, hits, topK)
		if err != nil {
			return nil, err
		}
		s.metrics.searched(ctx, sourceCache)
		return &SearchResult{Query: query, Hits: resolved, Source: SourceVendor, Cached: true}, nil
	}

	res, err := breaker.CallWithFallback(ctx, s.guard,
		func(ctx context.Context) (searchAnswer, error) {
			resp, err := s.client.Search(ctx, docai.SearchRequest{Query: query, TopK: topK})
			if err != nil {
				return searchAnswer{}, err
			}
			return searchAnswer{vendor: resp.Hits}, nil
		},
		func(ctx context.Context) (searchAnswer, error) {
			hits, err := s.localSearch(ctx, actor, query, topK)
			return searchAnswer{local: hits}, err
		},
	)
	if err != nil {
		return nil, err
	}

	if res.Degraded {
		s.metrics.searched(ctx, SourceLocal)
		out := &SearchResult{Query: query, Hits: res.Result.local, Source: SourceLocal, Degraded: true}
		if res.Err != nil {
			out.Reason = res.Err.Kind.String()
		}
		return out, nil
	}

	s.storeHits(ctx, key, res.Result.vendor)
	resolved, err := s.resolve(ctx, actor, res.Result.vendor, topK)
	if err != nil {
		return nil, err
	}
	s.metrics.searched(ctx, SourceVendor)
	return &SearchResult{Query: query, Hits: resolved, Source: SourceVendor}, nil
}

// resolve 按供应商给出的顺序解析命中，丢弃本地已删除或对 actor 不可见的文档
func (s *Service) resolve(ctx context.Context, actor Actor, hits []docai.SearchHit, topK int) ([]SearchHit, error) {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.DocumentID != "" {
			ids = append(ids, h.DocumentID)
		}
	}
	docs, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	out := make([]SearchHit, 0, min(len(hits), topK))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		doc, ok := byID[h.DocumentID]
		if !ok || !actor.CanView(doc) {
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		out = append(out, SearchHit{Document: doc, Score: h.Score, Snippet: h.Snippet})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (s *Service) localSearch(ctx context.Context, actor Actor, query string, topK int) ([]SearchHit, error) {
	docs, err := s.repo.KeywordSearch(ctx, actor, query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]SearchHit, 0, len(docs))
	for _, d := range docs {
		out = append(out, SearchHit{Document: d, Snippet: snippet(d)})
	}
	return out, nil
}

func (s *Service) searchKey(query string, topK int) string {
	sum := sha256.Sum256([]byte(strings.ToLower(query)))
	return fmt.Sprintf("search:%d:%d:%s", s.searchGen.Load(), topK, hex.EncodeToString(sum[:16]))
}

func (s *Service) cachedHits(ctx context.Context, key string) ([]docai.SearchHit, bool) {
	if s.cache == nil {
		return nil, false
	}
	var hits []docai.SearchHit
	err := s.cache.Get(ctx, key, &hits)
	if err == nil {
		return hits, true
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.WarnContext(ctx, "search cache read failed", clog.Error(err))
	}
	return nil, false
}

func (s *Service) storeHits(ctx context.Context, key string, hits []docai.SearchHit) {
	if s.cache == nil {
		return
	}
	if hits == nil {
		hits = []docai.SearchHit{}
	}
	if err := s.cache.Set(ctx, key, hits, s.cfg.SearchCacheTTL); err != nil {
		s.logger.WarnContext(ctx, "search cache write failed", clog.Error(err))
	}
}

// invalidateSearch 让本实例之前缓存的检索结果全部失效；
// 其他实例写入的共享缓存由 SearchCacheTTL 兜底
func (s *Service) invalidateSearch() {
	s.searchGen.Add(1)
}

func snippet(d *Document) string {
	text := d.Description
	if text == "" {
		text = d.Content
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetRunes]) + "…"
}
