package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/infrastructure/httpx"
	"ArxivDigest/internal/ports"
)

// Client talks to a self-hosted ranking service that scores papers against a profile.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Judge = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 5 * time.Minute},
	}
}

// WithHTTPClient swaps the transport.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	if client != nil {
		c.http = client
	}
	return c
}

type rankPaper struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
}

type rankRequest struct {
	Profile string      `json:"profile"`
	Papers  []rankPaper `json:"papers"`
}

type rankResponse struct {
	Results []struct {
		ID        string   `json:"id"`
		Score     *float64 `json:"score"`
		Rationale string   `json:"rationale"`
	} `json:"results"`
}

// Judge posts the batch to /rank and maps the results to verdicts.
func (c *Client) Judge(ctx context.Context, profile domain.Profile, papers []domain.Paper) ([]domain.Verdict, error) {
	if len(papers) == 0 {
		return nil, nil
	}

	payload := rankRequest{Profile: profile.InterestText(), Papers: make([]rankPaper, 0, len(papers))}
	for _, p := range papers {
		payload.Papers = append(payload.Papers, rankPaper{ID: p.ID, Title: p.Title, Abstract: p.Abstract})
	}

	var resp rankResponse
	if err := c.post(ctx, "/rank", payload, &resp); err != nil {
		return nil, err
	}

	verdicts := make([]domain.Verdict, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Score == nil {
			continue
		}
		verdicts = append(verdicts, domain.Verdict{
			PaperID:   r.ID,
			Score:     *r.Score,
			Rationale: strings.TrimSpace(r.Rationale),
		})
	}
	if len(verdicts) == 0 {
		return nil, domain.Malformed("rank service returned no scores")
	}
	return verdicts, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Transient(fmt.Errorf("do request: %w", err), 0)
	}

	if err := httpx.JudgeError(resp, "rank service"); err != nil {
		_ = resp.Body.Close()
		return err
	}

	if v == nil {
		if err := resp.Body.Close(); err != nil {
			return fmt.Errorf("close response body: %w", err)
		}
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return domain.Malformed("decode response: %v", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
