package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/kmis/auth"
	"github.com/ceyewan/kmis/breaker"
	"github.com/ceyewan/kmis/db"
	"github.com/ceyewan/kmis/docai"
	"github.com/ceyewan/kmis/document"
	"github.com/ceyewan/kmis/idem"
	"github.com/ceyewan/kmis/ratelimit"
	"github.com/ceyewan/kmis/testkit"
	"github.com/ceyewan/kmis/xerrors"
)

type stubVendor struct {
	mu        sync.Mutex
	failIndex bool
	failAll   bool
}

func (v *stubVendor) fail() error {
	return &breaker.TransportError{StatusCode: http.StatusServiceUnavailable}
}

func (v *stubVendor) IndexDocument(_ context.Context, req docai.IndexRequest) (*docai.IndexResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failIndex || v.failAll {
		return nil, v.fail()
	}
	return &docai.IndexResult{ExternalID: "ext-" + req.DocumentID, DocumentID: req.DocumentID, Status: docai.IndexStatusReady}, nil
}

func (v *stubVendor) GetDocument(_ context.Context, id string) (*docai.IndexResult, error) {
	return &docai.IndexResult{ExternalID: id, Status: docai.IndexStatusReady}, nil
}

func (v *stubVendor) DeleteDocument(context.Context, string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failAll {
		return v.fail()
	}
	return nil
}

func (v *stubVendor) Search(context.Context, docai.SearchRequest) (*docai.SearchResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failAll {
		return nil, v.fail()
	}
	return &docai.SearchResponse{Hits: []docai.SearchHit{}}, nil
}

type harness struct {
	t       *testing.T
	handler http.Handler
	authn   auth.Authenticator
	vendor  *stubVendor
	svc     *document.Service
}

func newHarness(t *testing.T, guardCfg *breaker.Config, opts ...Option) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	d, err := db.New(testkit.NewSQLiteConnector(t), &db.Config{LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, document.Migrate(context.Background(), d))

	if guardCfg == nil {
		guardCfg = &breaker.Config{Name: "docai", MaxFailures: 5, ResetTimeout: time.Hour}
	}
	guard, err := breaker.New(guardCfg)
	require.NoError(t, err)

	vendor := &stubVendor{}
	svc, err := document.NewService(document.NewRepository(d), vendor, guard, nil)
	require.NoError(t, err)

	authn, err := auth.New(&auth.Config{SecretKey: "kmis-api-test-secret-key-0123456789"})
	require.NoError(t, err)

	srv, err := New(svc, authn, append([]Option{WithLogger(testkit.NewLogger())}, opts...)...)
	require.NoError(t, err)

	return &harness{t: t, handler: srv.Handler(), authn: authn, vendor: vendor, svc: svc}
}

func (h *harness) token(user, unit string, roles ...string) string {
	h.t.Helper()
	tok, err := h.authn.GenerateToken(context.Background(), &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user},
		UnitID:           unit,
		Roles:            roles,
	})
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestNew(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestRequiresToken(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodGet, "/api/v1/documents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeUnauthorized, decode[errorResponse](t, w).Error.Code)

	w = h.do(http.MethodGet, "/api/v1/documents", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.token("alice", "u1", document.RoleMember)
	bob := h.token("bob", "u1", document.RoleMember)
	carol := h.token("carol", "u2", document.RoleMember)

	w := h.do(http.MethodPost, "/api/v1/documents", alice, map[string]any{
		"title":   "Leave policy",
		"content": "Employees get 20 days.",
		"tags":    []string{"HR"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	doc := decode[document.Document](t, w)
	assert.Equal(t, document.StatusIndexed, doc.Status)
	assert.Equal(t, "alice", doc.OwnerID)
	assert.Equal(t, []string{"hr"}, doc.Tags)
	path := "/api/v1/documents/" + doc.ID

	w = h.do(http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, path, carol, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decode[errorResponse](t, w).Error.Code)

	w = h.do(http.MethodPut, path, bob, map[string]any{"title": "mine now"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPut, path, alice, map[string]any{"title": "Leave policy v2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Leave policy v2", decode[document.Document](t, w).Title)

	w = h.do(http.MethodGet, "/api/v1/documents?tag=hr&page_size=5", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[document.Page](t, w)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 5, page.PageSize)

	w = h.do(http.MethodPost, path+"/reindex", alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodDelete, path, alice, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidInput(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.token("alice", "u1")

	w := h.do(http.MethodPost, "/api/v1/documents", alice, map[string]any{"content": "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidArgument, decode[errorResponse](t, w).Error.Code)

	w = h.do(http.MethodGet, "/api/v1/documents?page=abc", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/api/v1/documents?status=done", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/api/v1/search?q=", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateWhileVendorDown(t *testing.T) {
	h := newHarness(t, nil)
	h.vendor.failIndex = true

	w := h.do(http.MethodPost, "/api/v1/documents", h.token("alice", "u1"), map[string]any{"title": "t", "content": "c"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, document.StatusNotProcessed, decode[document.Document](t, w).Status)
}

func TestCreateIdempotent(t *testing.T) {
	guard, err := idem.New(&idem.Config{})
	require.NoError(t, err)
	h := newHarness(t, nil, WithIdempotency(guard))
	alice := h.token("alice", "u1")
	bob := h.token("bob", "u1")
	body := map[string]any{"title": "Leave policy", "content": "c"}

	post := func(token, key string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(idem.DefaultHeader, key)
		w := httptest.NewRecorder()
		h.handler.ServeHTTP(w, req)
		return w
	}

	first := post(alice, "create-1")
	require.Equal(t, http.StatusCreated, first.Code)
	again := post(alice, "create-1")
	require.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "true", again.Header().Get(idem.ReplayedHeader))
	assert.Equal(t, decode[document.Document](t, first).ID, decode[document.Document](t, again).ID)

	// 其他用户使用相同的键不会命中
	other := post(bob, "create-1")
	require.Equal(t, http.StatusCreated, other.Code)
	assert.Empty(t, other.Header().Get(idem.ReplayedHeader))

	w := h.do(http.MethodGet, "/api/v1/documents", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), decode[document.Page](t, w).Total)
}

func TestSearchDegraded(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.token("alice", "u1")
	w := h.do(http.MethodPost, "/api/v1/documents", alice, map[string]any{"title": "Leave policy", "content": "c"})
	require.Equal(t, http.StatusCreated, w.Code)

	h.vendor.failAll = true
	w = h.do(http.MethodGet, "/api/v1/search?q=leave&top_k=3", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[struct {
		Degraded bool   `json:"degraded"`
		Source   string `json:"source"`
		Reason   string `json:"reason"`
		Hits     []struct {
			Document document.Document `json:"document"`
		} `json:"hits"`
	}](t, w)
	assert.True(t, res.Degraded)
	assert.Equal(t, document.SourceLocal, res.Source)
	assert.Equal(t, string(breaker.KindAPIUnavailable), res.Reason)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "Leave policy", res.Hits[0].Document.Title)
}

func TestSearchFallbackDisabled(t *testing.T) {
	h := newHarness(t, &breaker.Config{Name: "docai", MaxFailures: 5, DisableFallback: true})
	h.vendor.failAll = true

	w := h.do(http.MethodGet, "/api/v1/search?q=leave", h.token("alice", "u1"), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode[errorResponse](t, w)
	assert.Equal(t, string(breaker.KindAPIUnavailable), resp.Error.Code)
	assert.Equal(t, "document service temporarily unavailable", resp.Error.Message)
}

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := &Server{logger: testkit.NewLogger()}

	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		hideText string
	}{
		{name: "not found", err: document.ErrNotFound, status: http.StatusNotFound, code: CodeNotFound},
		{name: "forbidden", err: xerrors.Wrap(document.ErrForbidden, "edit d1"), status: http.StatusForbidden, code: CodeForbidden},
		{name: "invalid", err: xerrors.Wrapf(document.ErrInvalidInput, "title is required"), status: http.StatusBadRequest, code: CodeInvalidArgument},
		{name: "unknown", err: errors.New("sqlite: disk I/O error"), status: http.StatusInternalServerError, code: CodeInternal, hideText: "sqlite"},
		{
			name: "vendor",
			err: &breaker.Error{Kind: breaker.KindAPIUnavailable, Message: "POST /v1/search: maintenance window",
				Cause: &breaker.TransportError{StatusCode: http.StatusServiceUnavailable}},
			status:   http.StatusServiceUnavailable,
			code:     string(breaker.KindAPIUnavailable),
			hideText: "maintenance",
		},
		{
			name:     "vendor permanent",
			err:      &breaker.Error{Kind: breaker.KindAuthFailed, Message: "vendor api key rejected"},
			status:   http.StatusBadGateway,
			code:     string(breaker.KindAuthFailed),
			hideText: "api key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)

			s.writeError(c, tt.err)
			assert.Equal(t, tt.status, w.Code)
			resp := decode[errorResponse](t, w)
			assert.Equal(t, tt.code, resp.Error.Code)
			if tt.hideText != "" {
				assert.NotContains(t, resp.Error.Message, tt.hideText)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodGet, "/healthz", "", nil)
	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestSearchRateLimit(t *testing.T) {
	limiter, err := ratelimit.New(&ratelimit.Config{Mode: ratelimit.ModeStandalone})
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	h := newHarness(t, nil, WithSearchLimit(limiter, ratelimit.Limit{Rate: 0.001, Burst: 1}))
	alice := h.token("alice", "u1")
	bob := h.token("bob", "u1")

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/search?q=x", alice, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodGet, "/api/v1/search?q=x", alice, nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/search?q=x", bob, nil).Code, "limits are per user")
}

func TestSystemEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	member := h.token("alice", "u1", document.RoleMember)
	admin := h.token("root", "", document.RoleAdmin)

	w := h.do(http.MethodGet, "/api/v1/system/vendor", member, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodGet, "/api/v1/system/vendor", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[map[string]any](t, w)
	assert.Equal(t, "closed", snap["state"])
	assert.Equal(t, "docai", snap["name"])

	w = h.do(http.MethodPost, "/api/v1/system/vendor/reset", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/api/v1/system/reprocess", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "not registered without a reprocessor")
}

func TestReprocessEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	r := document.NewReprocessor(h.svc, nil)
	srv, err := New(h.svc, h.authn, WithReprocessor(r))
	require.NoError(t, err)
	h.handler = srv.Handler()

	h.vendor.failIndex = true
	w := h.do(http.MethodPost, "/api/v1/documents", h.token("alice", "u1"), map[string]any{"title": "t", "content": "c"})
	require.Equal(t, http.StatusCreated, w.Code)
	h.vendor.failIndex = false

	w = h.do(http.MethodPost, "/api/v1/system/reprocess", h.token("root", "", document.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[document.Stats](t, w)
	assert.Equal(t, 1, st.Submitted)
	assert.Equal(t, 1, st.Indexed)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	h = newHarness(t, nil,
		WithHealthCheck("database", func(context.Context) error { return nil }),
		WithHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") }))
	w = h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, map[string]any{"database": "ok", "redis": "connection refused"}, body["checks"])
	assert.Equal(t, "closed", body["vendor"])
}
