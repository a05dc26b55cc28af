// Package handlers defines HTTP-layer error codes used across all API
// endpoints. The codes give clients a stable taxonomy to branch on,
// supplementing the human-readable message and the HTTP status.
package handlers

import "github.com/benedektothten/localchat-backend/internal/http/middleware"

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = middleware.CodeRateLimited
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeDispatchFailed   = "dispatch_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
