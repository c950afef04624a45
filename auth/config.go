package auth

import (
	"time"

	"github.com/ceyewan/kmis/xerrors"
	"github.com/golang-jwt/jwt/v5"
)

// Config Auth 配置
type Config struct {
	SecretKey     string   `mapstructure:"secret_key"`     // 签名密钥（至少 32 字符）
	SigningMethod string   `mapstructure:"signing_method"` // 签名方法，目前只支持 HS256
	Issuer        string   `mapstructure:"issuer"`
	Audience      []string `mapstructure:"audience"`

	// AccessTokenTTL 单个 Token 有效期，默认 15m
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	// RefreshTokenTTL 自首次签发起允许刷新的时长，默认 7d
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`

	// TokenLookup 提取方式，如 "header:Authorization" 或 "query:token"。
	// 留空时依次查找 header:Authorization -> query:token -> cookie:jwt
	TokenLookup   string `mapstructure:"token_lookup"`
	TokenHeadName string `mapstructure:"token_head_name"` // Header 前缀，默认 Bearer
}

func (c *Config) setDefaults() {
	if c.SigningMethod == "" {
		c.SigningMethod = jwt.SigningMethodHS256.Alg()
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = 15 * time.Minute
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.TokenHeadName == "" {
		c.TokenHeadName = "Bearer"
	}
}

func (c *Config) validate() error {
	if c.SecretKey == "" {
		return xerrors.Wrap(ErrInvalidConfig, "secret_key is required")
	}
	if len(c.SecretKey) < 32 {
		return xerrors.Wrap(ErrInvalidConfig, "secret_key must be at least 32 characters")
	}
	if c.SigningMethod != jwt.SigningMethodHS256.Alg() {
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported signing_method: %s", c.SigningMethod)
	}
	if c.AccessTokenTTL <= 0 {
		return xerrors.Wrap(ErrInvalidConfig, "access_token_ttl must be positive")
	}
	if c.RefreshTokenTTL < c.AccessTokenTTL {
		return xerrors.Wrap(ErrInvalidConfig, "refresh_token_ttl must not be shorter than access_token_ttl")
	}
	return nil
}
