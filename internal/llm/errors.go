package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrUnauthorized means the backend rejected the credentials; no other model is tried.
	ErrUnauthorized = errors.New("llm: unauthorized")
	// ErrAllModelsFailed wraps the last attempt error once every model was tried.
	ErrAllModelsFailed = errors.New("llm: all models failed")
	// ErrNoModels means neither a primary nor a fallback model is configured.
	ErrNoModels = errors.New("llm: no models configured")
	// ErrEmptyResponse marks a successful call that returned no text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// StatusError is an HTTP-level backend failure. Embedded is set when the
// backend answered 200 but carried an error object in the body.
type StatusError struct {
	StatusCode int
	Message    string
	Raw        string
	Embedded   bool
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	kind := "status " + strconv.Itoa(e.StatusCode)
	if e.Embedded {
		kind = "embedded error"
	}
	if e.Message == "" {
		return fmt.Sprintf("llm: %s", kind)
	}
	return fmt.Sprintf("llm: %s: %s", kind, e.Message)
}

func statusOf(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) && se != nil {
		return se, true
	}
	return nil, false
}

// IsModelUnavailable reports a 404 whose text points at the model or route
// rather than the endpoint itself.
func IsModelUnavailable(err error) bool {
	se, ok := statusOf(err)
	if !ok || se.StatusCode != http.StatusNotFound {
		return false
	}
	msg := strings.ToLower(se.Message)
	raw := strings.ToLower(se.Raw)
	return strings.Contains(msg, "model") ||
		strings.Contains(msg, "route") ||
		strings.Contains(msg, "no endpoints found") ||
		strings.Contains(raw, "matching route")
}

// IsUnauthorized reports a credential failure.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	se, ok := statusOf(err)
	return ok && se.StatusCode == http.StatusUnauthorized
}

// IsRateLimited reports a 429.
func IsRateLimited(err error) bool {
	se, ok := statusOf(err)
	return ok && se.StatusCode == http.StatusTooManyRequests
}

// IsTimeout reports deadline and network timeout failures.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var affordPattern = regexp.MustCompile(`(?i)can only afford (\d+)`)

// AffordableTokens extracts N from a 402 "can only afford N" message.
func AffordableTokens(err error) (int, bool) {
	se, ok := statusOf(err)
	if !ok || se.StatusCode != http.StatusPaymentRequired {
		return 0, false
	}
	m := affordPattern.FindStringSubmatch(se.Message + " " + se.Raw)
	if m == nil {
		return 0, false
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// outcome is the metrics tag for an attempt result.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, ErrEmptyResponse) {
		return "empty"
	}
	if IsTimeout(err) {
		return "timeout"
	}
	se, ok := statusOf(err)
	if !ok {
		return "error"
	}
	if se.Embedded {
		return "embedded_error"
	}
	switch se.StatusCode {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusPaymentRequired:
		return "payment_required"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "status_" + strconv.Itoa(se.StatusCode)
	}
}
