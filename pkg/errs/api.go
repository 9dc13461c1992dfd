package errs

import "fmt"

// APIError is a failed API response. The remote service reports its own
// error identifiers alongside the HTTP status.
type APIError struct {
	StatusCode int
	ID         int
	Name       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("api: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api: HTTP %d: %s (%d): %s", e.StatusCode, e.Name, e.ID, e.Message)
}

// Is matches ErrAPI.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// QuotaExhausted reports whether the API refused the call for quota or
// throttling reasons.
func (e *APIError) QuotaExhausted() bool {
	switch e.Name {
	case "throttle_violation", "access_denied_quota", "quota_exceeded":
		return true
	}
	return e.StatusCode == 429 || e.ID == 502
}
