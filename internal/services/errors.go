package services

import "errors"

var (
	// ErrValidation marks bad input; such requests never reach the remote store.
	ErrValidation = errors.New("invalid capsule request")
	// ErrRemoteWrite marks a rejected or unreachable remote insert.
	ErrRemoteWrite = errors.New("remote capsule store write failed")
	// ErrRemoteRead marks a subscription that could not be established or ended.
	ErrRemoteRead = errors.New("remote capsule store read failed")
	// ErrLocalCache marks a local cache failure. The capsule paths only log it.
	ErrLocalCache = errors.New("local capsule cache failed")
	// ErrUnauthenticated is returned when no identity is available.
	ErrUnauthenticated = errors.New("unauthenticated")
)
