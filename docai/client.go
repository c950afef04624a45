// Package docai 是托管文档检索服务（索引、删除、语义检索）的 HTTP 客户端。
//
// 客户端只负责在边界处把传输层结果转换成结构化错误，重试与熔断由调用方通过
// breaker.Guard 完成：
//
//	client, _ := docai.New(&cfg.DocAI, docai.WithLogger(logger))
//	out, err := breaker.Call(ctx, guard, func(ctx context.Context) (*docai.IndexResult, error) {
//	    return client.IndexDocument(ctx, req)
//	})
package docai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/kmis/breaker"
	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/trace"
	"github.com/ceyewan/kmis/xerrors"
)

// ErrConfigNil 配置为空
var ErrConfigNil = xerrors.Wrap(xerrors.ErrInvalidInput, "docai: config is nil")

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// Option 客户端选项
type Option func(*options)

type options struct {
	logger    clog.Logger
	transport http.RoundTripper
}

// WithLogger 注入日志记录器，自动添加 "docai" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("docai")
		}
	}
}

// WithTransport 指定底层 RoundTripper，外层总会包一层追踪
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

type httpClient struct {
	cfg     Config
	base    *url.URL
	hc      *http.Client
	limiter *rate.Limiter
	logger  clog.Logger
}

// New 创建供应商客户端
func New(cfg *Config, opts ...Option) (Client, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	base, _ := url.Parse(strings.TrimRight(c.BaseURL, "/"))
	client := &httpClient{
		cfg:  c,
		base: base,
		hc: &http.Client{
			Timeout:   c.Timeout,
			Transport: trace.HTTPTransport(o.transport),
		},
		logger: o.logger,
	}
	if c.RateLimit > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(c.RateLimit), c.Burst)
	}

	client.logger.Info("docai client created",
		clog.String("base_url", base.String()),
		clog.Duration("timeout", c.Timeout),
		clog.Float64("rate_limit", c.RateLimit))
	return client, nil
}

func (c *httpClient) IndexDocument(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	var res IndexResult
	if err := c.do(ctx, http.MethodPost, "/v1/documents", req, &res); err != nil {
		return nil, err
	}
	if res.ExternalID == "" {
		return nil, fmt.Errorf("%w: index response has no document id", breaker.ErrInvalidResponse)
	}
	return &res, nil
}

func (c *httpClient) GetDocument(ctx context.Context, externalID string) (*IndexResult, error) {
	if externalID == "" {
		return nil, &breaker.Error{Kind: breaker.KindDocumentNotFound, Message: "empty external id"}
	}
	var res IndexResult
	if err := c.do(ctx, http.MethodGet, "/v1/documents/"+url.PathEscape(externalID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *httpClient) DeleteDocument(ctx context.Context, externalID string) error {
	if externalID == "" {
		return &breaker.Error{Kind: breaker.KindDocumentNotFound, Message: "empty external id"}
	}
	return c.do(ctx, http.MethodDelete, "/v1/documents/"+url.PathEscape(externalID), nil, nil)
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var res SearchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/search", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// do 发送请求并把结果转换为结构化错误，out 为 nil 时忽略响应体
func (c *httpClient) do(ctx context.Context, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// 等待时间超过 ctx 的截止时间
			return &breaker.TransportError{StatusCode: http.StatusTooManyRequests, Code: "client_rate_limited", Err: err}
		}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return xerrors.Wrapf(xerrors.ErrInvalidInput, "docai: encode %s request: %v", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "docai: build %s request: %v", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "docai request failed",
			clog.String("method", method), clog.String("path", path), clog.Error(err))
		return transportError(err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "docai request",
		clog.String("method", method),
		clog.String("path", path),
		clog.Int("status", resp.StatusCode),
		clog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", breaker.ErrInvalidResponse, path, err)
	}
	return nil
}

// statusError 把非 2xx 响应转换为 TransportError，携带供应商错误码
func statusError(method, path string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	te := &breaker.TransportError{StatusCode: resp.StatusCode}
	msg := strings.TrimSpace(string(data))
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil && (eb.Error.Code != "" || eb.Error.Message != "") {
		te.Code = eb.Error.Code
		msg = eb.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	te.Err = fmt.Errorf("docai: %s %s: %s", method, path, msg)
	return te
}

// transportError 为拨号、DNS 与超时错误补上网络错误码
func transportError(err error) error {
	te := &breaker.TransportError{Err: err}

	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		te.Code = breaker.CodeConnRefused
	case errors.As(err, &dnsErr) && !dnsErr.IsTimeout:
		te.Code = breaker.CodeNotFound
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		te.Timeout = true
	}
	return te
}
