package document

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/kmis/breaker"
	"github.com/ceyewan/kmis/db"
	"github.com/ceyewan/kmis/docai"
	"github.com/ceyewan/kmis/testkit"
)

// fakeVendor 内存实现的 docai.Client，各字段可在测试中随时修改
type fakeVendor struct {
	mu sync.Mutex

	indexErr    error
	indexStatus docai.IndexStatus
	getErr      error
	getStatus   docai.IndexStatus
	deleteErr   error
	searchErr   error
	hits        []docai.SearchHit
	// indexHook 在 IndexDocument 开始时调用，不持有锁
	indexHook func()

	indexed  []docai.IndexRequest
	deleted  []string
	searches int
}

func (f *fakeVendor) IndexDocument(_ context.Context, req docai.IndexRequest) (*docai.IndexResult, error) {
	f.mu.Lock()
	hook := f.indexHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, req)
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	status := f.indexStatus
	if status == "" {
		status = docai.IndexStatusReady
	}
	return &docai.IndexResult{ExternalID: "ext-" + req.DocumentID, DocumentID: req.DocumentID, Status: status}, nil
}

func (f *fakeVendor) GetDocument(_ context.Context, externalID string) (*docai.IndexResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	status := f.getStatus
	if status == "" {
		status = docai.IndexStatusReady
	}
	return &docai.IndexResult{ExternalID: externalID, Status: status}, nil
}

func (f *fakeVendor) DeleteDocument(_ context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, externalID)
	return f.deleteErr
}

func (f *fakeVendor) Search(_ context.Context, _ docai.SearchRequest) (*docai.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &docai.SearchResponse{Hits: append([]docai.SearchHit(nil), f.hits...)}, nil
}

func (f *fakeVendor) set(fn func(f *fakeVendor)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeVendor) indexCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed)
}

func (f *fakeVendor) searchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

func unavailable() error {
	return &breaker.TransportError{StatusCode: 503}
}

type testEnv struct {
	ctx    context.Context
	repo   Repository
	vendor *fakeVendor
	guard  *breaker.Guard
	svc    *Service
}

func newRepository(t *testing.T) Repository {
	t.Helper()
	d, err := db.New(testkit.NewSQLiteConnector(t), &db.Config{LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), d))
	return NewRepository(d)
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	repo := newRepository(t)
	vendor := &fakeVendor{}
	guard, err := breaker.New(&breaker.Config{Name: "docai", MaxFailures: 3, ResetTimeout: time.Hour})
	require.NoError(t, err)
	svc, err := NewService(repo, vendor, guard, &Config{}, opts...)
	require.NoError(t, err)
	return &testEnv{
		ctx:    testkit.NewContext(t, 10*time.Second),
		repo:   repo,
		vendor: vendor,
		guard:  guard,
		svc:    svc,
	}
}

var (
	alice = Actor{UserID: "alice", UnitID: "u1", Roles: []string{RoleMember}}
	bob   = Actor{UserID: "bob", UnitID: "u1", Roles: []string{RoleMember}}
	carol = Actor{UserID: "carol", UnitID: "u2", Roles: []string{RoleMember}}
	boss  = Actor{UserID: "boss", UnitID: "u1", Roles: []string{RoleUnitManager}}
	root  = Actor{UserID: "root", Roles: []string{RoleAdmin}}
)

func (e *testEnv) create(t *testing.T, actor Actor, title, content string, v Visibility, tags ...string) *Document {
	t.Helper()
	doc, err := e.svc.Create(e.ctx, actor, CreateInput{Title: title, Content: content, Visibility: v, Tags: tags})
	require.NoError(t, err)
	return doc
}

// seed 直接写入数据库，绕过检索服务
func seed(t *testing.T, repo Repository, doc *Document) *Document {
	t.Helper()
	if doc.Status == "" {
		doc.Status = StatusIndexed
	}
	if doc.Visibility == "" {
		doc.Visibility = VisibilityUnit
	}
	if doc.Content == "" {
		doc.Content = "content of " + doc.ID
	}
	if doc.Title == "" {
		doc.Title = "title " + doc.ID
	}
	doc.Tags = NormalizeTags(doc.Tags)
	require.NoError(t, repo.Create(context.Background(), doc))
	return doc
}

func ids(docs []*Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}
