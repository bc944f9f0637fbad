package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivDigest/internal/domain"
)

func TestClientJudge(t *testing.T) {
	t.Parallel()

	profile := domain.Profile{Topic: "Statistics", Preferences: "causal inference"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rank", r.URL.Path)
		assert.Equal(t, "Bearer ml-key", r.Header.Get("Authorization"))

		var req rankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, profile.InterestText(), req.Profile)
		require.Len(t, req.Papers, 2)

		_, _ = w.Write([]byte(`{"results":[{"id":"a","score":8.5,"rationale":" causal "},{"id":"b"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "ml-key").WithHTTPClient(server.Client())
	verdicts, err := client.Judge(context.Background(), profile, []domain.Paper{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)

	require.Len(t, verdicts, 1, "results without a score are omitted")
	assert.Equal(t, domain.Verdict{PaperID: "a", Score: 8.5, Rationale: "causal"}, verdicts[0])
}

func TestClientJudgeErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status int
		body   string
		target error
	}{
		"unavailable": {status: http.StatusServiceUnavailable, body: "warming up", target: domain.ErrJudgeTransient},
		"garbage":     {status: http.StatusOK, body: "<html>", target: domain.ErrMalformedVerdict},
		"empty":       {status: http.StatusOK, body: `{"results":[]}`, target: domain.ErrMalformedVerdict},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, "").Judge(context.Background(), domain.Profile{Topic: "Statistics"}, []domain.Paper{{ID: "a"}})
			assert.ErrorIs(t, err, tc.target)
		})
	}
}
