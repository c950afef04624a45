package docai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/kmis/breaker"
	"github.com/ceyewan/kmis/xerrors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &Config{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}
	for _, m := range mutate {
		m(cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = New(&Config{})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = New(&Config{BaseURL: "not a url"})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = New(&Config{BaseURL: "http://localhost", RateLimit: -1})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestIndexDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/documents", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))

		var req IndexRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "doc-1", req.DocumentID)
		assert.Equal(t, []string{"policy"}, req.Tags)

		writeJSON(w, http.StatusCreated, map[string]string{"id": "ext-1", "document_id": req.DocumentID, "status": "pending"})
	})

	res, err := c.IndexDocument(context.Background(), IndexRequest{
		DocumentID: "doc-1",
		Title:      "Quality manual",
		Content:    "text",
		Tags:       []string{"policy"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ext-1", res.ExternalID)
	assert.Equal(t, IndexStatusPending, res.Status)
}

func TestIndexDocument_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
	})

	_, err := c.IndexDocument(context.Background(), IndexRequest{DocumentID: "doc-1"})
	assert.ErrorIs(t, err, breaker.ErrInvalidResponse)
	assert.Equal(t, breaker.KindInvalidResponse, breaker.Classify(err).Kind)
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		code   string
		kind   breaker.Kind
	}{
		{http.StatusUnauthorized, "invalid_api_key", breaker.KindAuthFailed},
		{http.StatusForbidden, "forbidden", breaker.KindAuthFailed},
		{http.StatusNotFound, "document_not_found", breaker.KindDocumentNotFound},
		{http.StatusTooManyRequests, "rate_limited", breaker.KindRateLimitExceeded},
		{http.StatusBadGateway, "", breaker.KindAPIUnavailable},
		{http.StatusServiceUnavailable, "overloaded", breaker.KindAPIUnavailable},
		{http.StatusBadRequest, "bad_request", breaker.KindProcessingFailed},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.code == "" {
					w.WriteHeader(tt.status)
					return
				}
				body := map[string]any{"error": map[string]string{"code": tt.code, "message": "vendor says no"}}
				writeJSON(w, tt.status, body)
			})

			_, err := c.GetDocument(context.Background(), "ext-1")
			require.Error(t, err)

			var te *breaker.TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.status, te.StatusCode)
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, tt.kind, breaker.Classify(err).Kind)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [`))
	})

	_, err := c.Search(context.Background(), SearchRequest{Query: "accreditation"})
	assert.ErrorIs(t, err, breaker.ErrInvalidResponse)
	assert.Equal(t, breaker.KindInvalidResponse, breaker.Classify(err).Kind)
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "accreditation", req.Query)
		assert.Equal(t, 5, req.TopK)
		assert.Equal(t, "u1", req.Filters["unit_id"])

		writeJSON(w, http.StatusOK, map[string]any{"results": []map[string]any{
			{"document_id": "doc-1", "id": "ext-1", "score": 0.92, "snippet": "self-study report"},
			{"document_id": "doc-2", "id": "ext-2", "score": 0.40},
		}})
	})

	res, err := c.Search(context.Background(), SearchRequest{Query: "accreditation", TopK: 5, Filters: map[string]string{"unit_id": "u1"}})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "doc-1", res.Hits[0].DocumentID)
	assert.InDelta(t, 0.92, res.Hits[0].Score, 1e-9)
	assert.Equal(t, "self-study report", res.Hits[0].Snippet)
}

func TestDeleteDocument(t *testing.T) {
	var path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		path = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteDocument(context.Background(), "ext/1"))
	assert.Equal(t, "/v1/documents/ext%2F1", path)

	err := c.DeleteDocument(context.Background(), "")
	assert.Equal(t, breaker.KindDocumentNotFound, breaker.KindOf(err))
}

func TestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(&Config{BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.GetDocument(context.Background(), "ext-1")
	var te *breaker.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, breaker.CodeConnRefused, te.Code)
	assert.Equal(t, breaker.KindNetworkError, breaker.Classify(err).Kind)
}

func TestClientTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, func(cfg *Config) { cfg.Timeout = 20 * time.Millisecond })

	_, err := c.GetDocument(context.Background(), "ext-1")
	var te *breaker.TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Timeout)
	assert.Equal(t, breaker.KindTimeout, breaker.Classify(err).Kind)
}

func TestRateLimiter(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"id": "ext-1"})
	}, func(cfg *Config) {
		cfg.RateLimit = 1
		cfg.Burst = 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetDocument(ctx, "ext-1")
	require.NoError(t, err)

	_, err = c.GetDocument(ctx, "ext-1")
	require.Error(t, err)
	assert.Equal(t, breaker.KindRateLimitExceeded, breaker.Classify(err).Kind)
	assert.Equal(t, int32(1), hits.Load())
}

func TestWithGuard_RetriesUntilVendorRecovers(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]string{"code": "overloaded"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "ext-9", "status": "ready"})
	})

	guard, err := breaker.New(&breaker.Config{Name: "docai", MaxRetries: 3, RetryDelay: time.Millisecond, Timeout: time.Second})
	require.NoError(t, err)

	out, err := breaker.Call(context.Background(), guard, func(ctx context.Context) (*IndexResult, error) {
		return c.IndexDocument(ctx, IndexRequest{DocumentID: "doc-9"})
	})
	require.NoError(t, err)
	require.False(t, out.FallbackUsed)
	assert.Equal(t, "ext-9", out.Result.ExternalID)
	assert.Equal(t, int32(3), hits.Load())
}
