package auth

import "github.com/ceyewan/kmis/xerrors"

var (
	ErrInvalidToken     = xerrors.Wrap(xerrors.ErrUnauthorized, "auth: invalid token")
	ErrExpiredToken     = xerrors.Wrap(xerrors.ErrUnauthorized, "auth: token expired")
	ErrMissingToken     = xerrors.Wrap(xerrors.ErrUnauthorized, "auth: missing token")
	ErrInvalidSignature = xerrors.Wrap(xerrors.ErrUnauthorized, "auth: invalid signature")
	ErrRefreshExpired   = xerrors.Wrap(xerrors.ErrUnauthorized, "auth: refresh window expired")
	ErrInvalidClaims    = xerrors.Wrap(xerrors.ErrInvalidInput, "auth: invalid claims")
	ErrInvalidConfig    = xerrors.Wrap(xerrors.ErrInvalidInput, "auth: invalid config")
)
