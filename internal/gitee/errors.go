package gitee

import (
	"fmt"
	"net/url"
	"time"
)

// AuthenticationError is returned when Gitee rejects the access token.
// It is fatal for a run.
type AuthenticationError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("gitee authentication failed (%d) for %s: %s", e.StatusCode, e.URL, e.Message)
}

// RateLimitError is returned when Gitee throttles the client. RetryAfter is
// how long the caller should wait before asking again.
type RateLimitError struct {
	StatusCode int
	URL        string
	RetryAfter time.Duration
	Reset      time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("gitee rate limit hit (%d) for %s, retry after %v", e.StatusCode, e.URL, e.RetryAfter)
}

// MalformedResponseError is returned when a response body cannot be decoded.
// The whole page is rejected.
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("gitee malformed response from %s: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// StatusError covers every other non-2xx answer.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gitee returned %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}

// redactURL strips the access token so URLs can be logged and put in errors.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("access_token") {
		q.Set("access_token", "xxxxx")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
