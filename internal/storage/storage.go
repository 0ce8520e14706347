package storage

import "errors"

var (
	ErrUserExists     = errors.New("user already exists")
	ErrUserNotFound   = errors.New("user not found")
	ErrClientExists   = errors.New("client already exists")
	ErrClientNotFound = errors.New("client not found")
	ErrRoleExists     = errors.New("role already exists")
	ErrRoleNotFound   = errors.New("role not found")
	ErrKeyExists      = errors.New("signing key already exists")
	ErrKeyNotFound    = errors.New("signing key not found")
	ErrNoActiveKey    = errors.New("no active signing key")
	ErrTokenExists    = errors.New("refresh token already exists")
	ErrTokenNotFound  = errors.New("refresh token not found")
	// ErrTokenRevoked is returned when a conditional revoke matched no active row.
	ErrTokenRevoked = errors.New("refresh token already revoked")
)
