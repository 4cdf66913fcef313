// HTTP-layer error codes.
//
// Codes are lowercase snake_case and stable: clients branch on them while
// messages stay free to change.
package handlers

const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeInternal   = "internal_error"

	// Domain-specific:
	ErrCodeWorkerStartFailed = "worker_start_failed"
	ErrCodeListFailed        = "list_failed"
)
