// Package httpx holds response helpers shared by the HTTP adapters.
package httpx

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ArxivDigest/internal/domain"
)

const maxErrorBody = 1024

// StatusError returns nil for 2xx responses and otherwise an error carrying the
// status and the first KiB of the body.
func StatusError(resp *http.Response, service string) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s error %s: %s", service, resp.Status, strings.TrimSpace(string(payload)))
}

// JudgeError is StatusError with retry classification: 408, 429 and 5xx are
// transient and carry the Retry-After delay, anything else is permanent.
func JudgeError(resp *http.Response, service string) error {
	err := StatusError(resp, service)
	if err == nil {
		return nil
	}
	if Retryable(resp.StatusCode) {
		return domain.Transient(err, ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	}
	return err
}

// Retryable reports whether a status code is worth another attempt.
func Retryable(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}

// ParseRetryAfter reads delay-seconds or an HTTP date. Unparseable or past values yield 0.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
