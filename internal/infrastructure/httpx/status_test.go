package httpx

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivDigest/internal/domain"
)

func response(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestJudgeErrorClassification(t *testing.T) {
	t.Parallel()

	assert.NoError(t, JudgeError(response(http.StatusOK, "", nil), "svc"))

	err := JudgeError(response(http.StatusTooManyRequests, "slow down", http.Header{"Retry-After": {"7"}}), "svc")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrJudgeTransient)
	assert.Equal(t, 7*time.Second, domain.RetryAfter(err))
	assert.Contains(t, err.Error(), "slow down")

	err = JudgeError(response(http.StatusBadGateway, "", nil), "svc")
	assert.ErrorIs(t, err, domain.ErrJudgeTransient)

	err = JudgeError(response(http.StatusUnauthorized, "bad key", nil), "svc")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrJudgeTransient))
}

func TestStatusErrorTruncatesBody(t *testing.T) {
	t.Parallel()

	err := StatusError(response(http.StatusBadRequest, strings.Repeat("x", 4096), nil), "svc")
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 1200)
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.October, 9, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 3*time.Second, ParseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-1", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("soon", now))
	assert.Equal(t, 90*time.Second, ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}
