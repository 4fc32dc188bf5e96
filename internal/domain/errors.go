package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrSchemaMismatch = errors.New("indexer response schema mismatch")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrContextDone    = errors.New("context cancelled")
)
