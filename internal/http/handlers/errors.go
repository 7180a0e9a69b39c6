package handlers

// Error codes carried in ErrorResponse.Code.
const (
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "unavailable"

	ErrCodeBadRequest  = "bad_request"
	ErrCodeStatsFailed = "stats_failed"
	ErrCodeListFailed  = "list_failed"
)
