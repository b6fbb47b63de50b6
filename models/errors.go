package models

import (
	"errors"
	"fmt"
)

// Error codes used in status events, API responses and internal error handling.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeMissingCredential = "MISSING_CREDENTIAL"
	ErrCodeResolution        = "RESOLUTION_FAILED"
	ErrCodeBrowserLaunch     = "BROWSER_LAUNCH"
	ErrCodeNavigation        = "NAVIGATION_FAILED"
	ErrCodeTimeout           = "SCRAPE_TIMEOUT"
	ErrCodeExtraction        = "EXTRACTION_FAILED"
	ErrCodePersist           = "PERSIST_FAILED"
	ErrCodeBatchRunning      = "BATCH_RUNNING"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// IsFatal reports whether err must abort a whole batch before any target runs.
// Only input and credential problems qualify; everything else is scoped to a
// target or an item.
func IsFatal(err error) bool {
	var se *ScrapeError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == ErrCodeInvalidInput || se.Code == ErrCodeMissingCredential
}

// ErrorCode returns the code of the first ScrapeError in err's chain, or
// ErrCodeInternal.
func ErrorCode(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// ResolutionError reports a sitemap that could not be fetched or parsed.
type ResolutionError struct {
	Sitemap string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve sitemap %s: %v", e.Sitemap, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
