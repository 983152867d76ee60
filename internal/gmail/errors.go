package gmail

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// NotFoundError indicates a message that existed when it was listed but
// vanished before its detail could be fetched. Callers treat it as a
// recoverable skip, not a run failure.
type NotFoundError struct {
	MessageID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message %s not found", e.MessageID)
}

// IsNotFound reports whether err marks a vanished message.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsQuotaExceeded reports whether err is a Gmail API rate or quota error.
func IsQuotaExceeded(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	if apiErr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}

// isTransient reports whether err is worth retrying: quota errors and
// server-side failures. Auth errors and 4xx responses are not.
func isTransient(err error) bool {
	if IsQuotaExceeded(err) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 500
	}
	return false
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
