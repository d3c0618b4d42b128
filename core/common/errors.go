package common

import (
	"errors"
	"fmt"
)

/*Error type for a new application error */
type Error struct {
	Code string `json:"code,omitempty"`
	Msg  string `json:"msg"`
}

func (err *Error) Error() string {
	return fmt.Sprintf("%s: %s", err.Code, err.Msg)
}

/*NewError - create a new error */
func NewError(code string, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

/*NewErrorf - create a new formatted error */
func NewErrorf(code string, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

/*InvalidRequest - create error messages that are needed when validating request input */
func InvalidRequest(msg string) error {
	return NewError(ErrBadRequestCode, fmt.Sprintf("Invalid request (%v)", msg))
}

const (
	ErrBadRequestCode = "invalid_request"
	ErrInternalCode   = "internal_error"
	ErrNoResourceCode = "resource_not_found"

	// Disk layer integrity codes.
	ErrInvalidCIDCode             = "invalid_cid"
	ErrUnexpectedSubdirectoryCode = "unexpected_subdirectory"

	// Sync protocol codes.
	ErrSyncInProgressCode           = "sync_in_progress"
	ErrRemoteUnavailableCode        = "remote_unavailable"
	ErrMalformedExportCode          = "malformed_export"
	ErrContentIntegrityMismatchCode = "content_integrity_mismatch"
	ErrReconciliationConflictCode   = "reconciliation_conflict"
)

// ErrCode returns the application error code of err, unwrapping as needed.
// Returns ErrInternalCode for errors that carry no code.
func ErrCode(err error) string {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	return ErrInternalCode
}

// IsCode reports whether err carries the given application error code.
func IsCode(err error, code string) bool {
	return err != nil && ErrCode(err) == code
}
