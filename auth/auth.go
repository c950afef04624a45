// Package auth 提供基于 JWT 的认证能力。
//
// 支持：
//   - Token 生成、验证与刷新（HS256）
//   - Gin 中间件集成与基于角色的访问控制
//   - 多种 Token 提取方式 (Header, Query, Cookie)
//
// 基本使用：
//
//	authenticator, _ := auth.New(&auth.Config{SecretKey: "..."})
//	token, _ := authenticator.GenerateToken(ctx, &auth.Claims{
//	    RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123"},
//	    UnitID:           "cs",
//	    Roles:            []string{"member"},
//	})
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/metrics"
	"github.com/ceyewan/kmis/xerrors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// 指标名称
const (
	MetricTokensGenerated = "auth_tokens_generated_total"
	MetricTokensValidated = "auth_tokens_validated_total"
	MetricTokensRefreshed = "auth_tokens_refreshed_total"
)

// Authenticator 认证器接口
type Authenticator interface {
	// GenerateToken 生成 Token，未设置的 exp/iat/iss 由配置补全
	GenerateToken(ctx context.Context, claims *Claims) (string, error)

	// ValidateToken 验证 Token，返回 Claims
	ValidateToken(ctx context.Context, token string) (*Claims, error)

	// RefreshToken 用仍然有效的 Token 换取新 Token
	RefreshToken(ctx context.Context, token string) (string, error)

	// GinMiddleware 返回 Gin 认证中间件
	GinMiddleware() gin.HandlerFunc
}

type jwtAuth struct {
	config  *Config
	options *options
	parser  *jwt.Parser

	generated metrics.Counter
	validated metrics.Counter
	refreshed metrics.Counter
}

// New 创建 Authenticator
func New(cfg *Config, opts ...Option) (Authenticator, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{cfg.SigningMethod}),
		jwt.WithTimeFunc(o.now),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if len(cfg.Audience) > 0 {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience[0]))
	}

	a := &jwtAuth{
		config:  cfg,
		options: o,
		parser:  jwt.NewParser(parserOpts...),
	}

	var err error
	if a.generated, err = o.meter.Counter(MetricTokensGenerated, "Total number of tokens generated"); err != nil {
		return nil, err
	}
	if a.validated, err = o.meter.Counter(MetricTokensValidated, "Total number of tokens validated"); err != nil {
		return nil, err
	}
	if a.refreshed, err = o.meter.Counter(MetricTokensRefreshed, "Total number of tokens refreshed"); err != nil {
		return nil, err
	}

	return a, nil
}

// GenerateToken 生成 Token
func (a *jwtAuth) GenerateToken(ctx context.Context, claims *Claims) (string, error) {
	if claims == nil || claims.Subject == "" {
		return "", ErrInvalidClaims
	}

	now := a.options.now()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.config.AccessTokenTTL))
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.OrigIssuedAt == 0 {
		claims.OrigIssuedAt = claims.IssuedAt.Unix()
	}
	if claims.Issuer == "" {
		claims.Issuer = a.config.Issuer
	}
	if len(claims.Audience) == 0 && len(a.config.Audience) > 0 {
		claims.Audience = jwt.ClaimStrings(a.config.Audience)
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(a.config.SigningMethod), claims)
	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", xerrors.Wrap(err, "failed to sign token")
	}

	a.options.logger.DebugContext(ctx, "token generated", clog.String("user_id", claims.Subject))
	a.generated.Inc(ctx)
	return signed, nil
}

// ValidateToken 验证 Token
func (a *jwtAuth) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(a.config.SecretKey), nil
	})
	if err != nil {
		var errType string
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			errType = "expired"
			err = ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			errType = "invalid_signature"
			err = ErrInvalidSignature
		default:
			errType = "invalid_token"
			err = ErrInvalidToken
		}
		a.validated.Inc(ctx, metrics.L("status", "error"), metrics.L("error_type", errType))
		return nil, err
	}
	// 没有用户身份的 Token 无法做归属判断
	if claims.Subject == "" {
		a.validated.Inc(ctx, metrics.L("status", "error"), metrics.L("error_type", "missing_subject"))
		return nil, ErrInvalidToken
	}

	a.validated.Inc(ctx, metrics.L("status", "success"))
	return claims, nil
}

// RefreshToken 刷新 Token。
//
// 新 Token 沿用原 Claims，重新计算 exp 与 iat；自首次签发超过
// RefreshTokenTTL 后拒绝刷新。
func (a *jwtAuth) RefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := a.ValidateToken(ctx, token)
	if err != nil {
		a.refreshed.Inc(ctx, metrics.L("status", "error"), metrics.L("error_type", "validation_failed"))
		return "", err
	}

	orig := time.Unix(claims.OrigIssuedAt, 0)
	if claims.OrigIssuedAt == 0 && claims.IssuedAt != nil {
		orig = claims.IssuedAt.Time
	}
	if a.options.now().Sub(orig) > a.config.RefreshTokenTTL {
		a.refreshed.Inc(ctx, metrics.L("status", "error"), metrics.L("error_type", "refresh_expired"))
		return "", ErrRefreshExpired
	}

	claims.ExpiresAt = nil
	claims.IssuedAt = nil
	claims.OrigIssuedAt = orig.Unix()

	newToken, err := a.GenerateToken(ctx, claims)
	if err != nil {
		a.refreshed.Inc(ctx, metrics.L("status", "error"), metrics.L("error_type", "generation_failed"))
		return "", err
	}

	a.options.logger.InfoContext(ctx, "token refreshed", clog.String("user_id", claims.Subject))
	a.refreshed.Inc(ctx, metrics.L("status", "success"))
	return newToken, nil
}

// ExtractToken 从请求中提取 token
func (a *jwtAuth) ExtractToken(r *http.Request) (string, error) {
	if a.config.TokenLookup == "" {
		for _, lookup := range []string{"header:Authorization", "query:token", "cookie:jwt"} {
			if token, err := a.extractFrom(r, lookup); err == nil {
				return token, nil
			}
		}
		return "", ErrMissingToken
	}
	return a.extractFrom(r, a.config.TokenLookup)
}

func (a *jwtAuth) extractFrom(r *http.Request, lookup string) (string, error) {
	source, key, ok := strings.Cut(lookup, ":")
	if !ok || key == "" {
		return "", ErrMissingToken
	}

	switch source {
	case "header":
		value := r.Header.Get(key)
		head, token, found := strings.Cut(value, " ")
		if !found || head != a.config.TokenHeadName || token == "" {
			return "", ErrMissingToken
		}
		return token, nil

	case "query":
		if token := r.URL.Query().Get(key); token != "" {
			return token, nil
		}
		return "", ErrMissingToken

	case "cookie":
		cookie, err := r.Cookie(key)
		if err != nil || cookie.Value == "" {
			return "", ErrMissingToken
		}
		return cookie.Value, nil

	default:
		return "", ErrMissingToken
	}
}
