package errors

import (
	"github.com/ancourn/kaldr/jsonx"
)

// SyncErrorCode represents standardized error codes for catch-up operations
type SyncErrorCode string

const (
	// General errors
	ErrCodeInternal SyncErrorCode = "internal_error"

	// Fetch errors
	ErrCodeFetchFailed    SyncErrorCode = "fetch_failed"
	ErrCodeFetchTimeout   SyncErrorCode = "fetch_timeout"
	ErrCodeMalformedBlock SyncErrorCode = "malformed_block"

	// Batch validation errors
	ErrCodeIncompleteBatch     SyncErrorCode = "incomplete_batch"
	ErrCodeHeightDiscontinuity SyncErrorCode = "height_discontinuity"
	ErrCodeChainBreak          SyncErrorCode = "chain_break"
	ErrCodeInvalidSignature    SyncErrorCode = "invalid_signature"

	// Session errors
	ErrCodeAlreadySyncing  SyncErrorCode = "already_syncing"
	ErrCodeRetriesExceeded SyncErrorCode = "retries_exceeded"
)

// SyncError represents a standardized catch-up subsystem error.
// Height carries the offending height where one exists, 0 otherwise.
type SyncError struct {
	Code    SyncErrorCode `json:"code"`
	Message string        `json:"message"`
	Height  uint64        `json:"height,omitempty"`
}

// Error implements the error interface
func (e *SyncError) Error() string {
	out, _ := jsonx.Marshal(e)
	return string(out)
}

// NewSyncError creates a SyncError with a code and message
func NewSyncError(code SyncErrorCode, message string) *SyncError {
	return &SyncError{Code: code, Message: message}
}

// NewSyncErrorAt creates a SyncError bound to a specific height
func NewSyncErrorAt(code SyncErrorCode, message string, height uint64) *SyncError {
	return &SyncError{Code: code, Message: message, Height: height}
}

// CodeOf extracts the SyncErrorCode from an error, or ErrCodeInternal
// when the error is not a SyncError.
func CodeOf(err error) SyncErrorCode {
	if se, ok := err.(*SyncError); ok {
		return se.Code
	}
	return ErrCodeInternal
}
