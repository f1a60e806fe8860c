// Package common defines shared constants and sentinel errors used across
// the authentication core and its transports. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Primary credential errors. Unknown account and wrong password share
	// ErrInvalidCredentials so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")

	// Second factor errors.
	ErrSecondFactorRequired    = errors.New("second factor required")
	ErrInvalidSecondFactorCode = errors.New("invalid second factor code")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrRevokedToken = errors.New("token revoked")

	// ErrStoreUnavailable marks a transient backing store failure. It must never
	// be reported to clients as an authentication rejection.
	ErrStoreUnavailable = errors.New("store temporarily unavailable")

	// ErrConfiguration blocks process startup.
	ErrConfiguration = errors.New("configuration error")

	// Input and encoding errors.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEncoding        = errors.New("encoding error")
)
