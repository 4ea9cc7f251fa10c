package services

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Standard service errors surfaced by the core operations
var (
	// Network and connectivity errors
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrTimeout            = errors.New("operation timed out")
	ErrUnauthorized       = errors.New("unauthorized access")

	// Data errors
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input provided")
	ErrInvalidFormat = errors.New("invalid format")

	// Label errors
	ErrLabelNotFound = errors.New("label not found")
	ErrLabelConflict = errors.New("label name conflict")

	// ErrVerifyFailed means the batch mutation was applied but the follow-up
	// thread fetch failed, so no widening verification ran.
	ErrVerifyFailed = errors.New("mutation applied but verification fetch failed")
)

// IsRetryableError determines if an error is worth retrying at the caller's
// discretion. The core itself never retries beyond the one-shot auth refresh.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrVerifyFailed)
}

// IsPermanentError determines if an error is permanent and should not be retried
func IsPermanentError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrLabelNotFound)
}

// IsUnauthorizedError reports whether the remote store rejected the credential
func IsUnauthorizedError(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized
}

// IsConflictError reports whether a label create was rejected because the
// name already exists remotely (created concurrently by another session)
func IsConflictError(err error) bool {
	if errors.Is(err, ErrLabelConflict) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}
