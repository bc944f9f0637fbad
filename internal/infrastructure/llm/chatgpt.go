package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ArxivDigest/internal/config"
	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/infrastructure/httpx"
	"ArxivDigest/internal/ports"
)

// ChatGPTJudge implements ports.Judge backed by OpenAI-compatible chat completions.
type ChatGPTJudge struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	temperature  float64
	httpClient   *http.Client
	logger       *slog.Logger
}

var _ ports.Judge = (*ChatGPTJudge)(nil)

// NewChatGPTJudge builds a judge from configuration. Per-call deadlines come
// from the caller's context; the client timeout is only a backstop.
func NewChatGPTJudge(cfg config.ChatGPTConfig, log *slog.Logger) *ChatGPTJudge {
	return &ChatGPTJudge{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: log,
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *ChatGPTJudge) WithHTTPClient(client *http.Client) *ChatGPTJudge {
	if client != nil {
		c.httpClient = client
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Judge sends one prompt for the whole batch and returns the verdicts it could
// parse. Verdicts are not range-checked here.
func (c *ChatGPTJudge) Judge(ctx context.Context, profile domain.Profile, papers []domain.Paper) ([]domain.Verdict, error) {
	if c == nil {
		return nil, fmt.Errorf("chatgpt judge is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return nil, fmt.Errorf("%w: chatgpt judge misconfigured", domain.ErrConfiguration)
	}
	if len(papers) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: BuildPrompt(profile, papers)},
		},
		Temperature:    c.temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("chatgpt request: %w", err), 0)
	}
	defer resp.Body.Close()

	if err := httpx.JudgeError(resp, "chatgpt"); err != nil {
		return nil, err
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, domain.Malformed("decode chatgpt response: %v", err)
	}
	if len(completion.Choices) == 0 {
		return nil, domain.Malformed("chatgpt returned no choices")
	}

	verdicts, skipped, err := ParseVerdicts(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	for _, reason := range skipped {
		c.debug("unusable verdict", "reason", reason)
	}
	return verdicts, nil
}

// BuildPrompt lays out the interest profile verbatim followed by the papers.
func BuildPrompt(profile domain.Profile, papers []domain.Paper) string {
	var b strings.Builder
	b.WriteString("You are helping a researcher decide which new arXiv papers to read.\n\n")
	b.WriteString("Reader profile:\n")
	b.WriteString(profile.InterestText())
	b.WriteString("\n\n")
	b.WriteString("Score every paper below for relevance to this reader on a scale from 0 (irrelevant) ")
	b.WriteString("to 10 (must read), and justify each score in one or two sentences.\n")
	b.WriteString(`Answer with a JSON object of the form {"results":[{"id":"<paper id>","score":<0-10>,"rationale":"<why>"}]} `)
	b.WriteString("with exactly one entry per paper, using the ids given.\n\n")
	b.WriteString("Papers:\n")
	for i, p := range papers {
		fmt.Fprintf(&b, "%d. id: %s\n   title: %s\n   abstract: %s\n", i+1, p.ID, p.Title, p.Abstract)
	}
	return b.String()
}

type rawVerdict struct {
	ID        string          `json:"id"`
	Score     json.RawMessage `json:"score"`
	Rationale string          `json:"rationale"`
	// field names used by older digest prompts
	RelevancyScore json.RawMessage `json:"Relevancy score"`
	Reasons        string          `json:"Reasons for match"`
}

// ParseVerdicts extracts verdicts from a model answer. It tolerates code fences,
// a bare array, numeric strings and "7/10". Entries it cannot use are reported in
// skipped; an answer with no usable structure is a malformed verdict error.
func ParseVerdicts(content string) ([]domain.Verdict, []string, error) {
	content = stripFences(content)
	if content == "" {
		return nil, nil, domain.Malformed("empty answer")
	}

	var raws []rawVerdict
	if strings.HasPrefix(content, "[") {
		if err := json.Unmarshal([]byte(content), &raws); err != nil {
			return nil, nil, domain.Malformed("decode verdict list: %v", err)
		}
	} else {
		var envelope struct {
			Results []rawVerdict `json:"results"`
		}
		if err := json.Unmarshal([]byte(content), &envelope); err != nil {
			return nil, nil, domain.Malformed("decode verdicts: %v", err)
		}
		raws = envelope.Results
	}
	if len(raws) == 0 {
		return nil, nil, domain.Malformed("answer contains no verdicts")
	}

	var (
		verdicts = make([]domain.Verdict, 0, len(raws))
		skipped  []string
	)
	for _, raw := range raws {
		scoreField, rationale := raw.Score, raw.Rationale
		if len(scoreField) == 0 {
			scoreField = raw.RelevancyScore
		}
		if rationale == "" {
			rationale = raw.Reasons
		}

		score, err := parseScore(scoreField)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", raw.ID, err))
			continue
		}
		verdicts = append(verdicts, domain.Verdict{
			PaperID:   strings.TrimSpace(raw.ID),
			Score:     score,
			Rationale: strings.TrimSpace(rationale),
		})
	}
	if len(verdicts) == 0 {
		return nil, skipped, domain.Malformed("no usable verdicts: %s", strings.Join(skipped, "; "))
	}
	return verdicts, skipped, nil
}

func parseScore(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing score")
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return finite(number)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, fmt.Errorf("score %s is not a number", string(raw))
	}
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "/"); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}
	number, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("score %q is not a number", text)
	}
	return finite(number)
}

func finite(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("score is not finite")
	}
	return v, nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a careful research assistant that rates arXiv papers and answers only in JSON."
	}
	return prompt
}

func (c *ChatGPTJudge) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
