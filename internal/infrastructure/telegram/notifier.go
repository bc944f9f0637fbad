package telegram

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/infrastructure/httpx"
	"ArxivDigest/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	maxMessage     = 4096
	topTitles      = 10
)

// Notifier posts a short digest notice to a Telegram chat via the bot API.
type Notifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

var _ ports.Sink = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  defaultAPIBase,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the notifier at another bot API host.
func (n *Notifier) WithBaseURL(base string) *Notifier {
	if base != "" {
		n.baseURL = strings.TrimSuffix(base, "/")
	}
	return n
}

// Name identifies the sink in logs.
func (n *Notifier) Name() string { return "telegram" }

// Deliver sends the subject plus the top titles as an HTML-formatted message.
func (n *Notifier) Deliver(ctx context.Context, doc domain.Document) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", buildDigestMessage(doc))
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		// the token is part of the URL; keep it out of logs
		return fmt.Errorf("do request: %w", redact(err, n.botToken))
	}
	defer resp.Body.Close()

	return httpx.StatusError(resp, "telegram")
}

func buildDigestMessage(doc domain.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n%s\n", html.EscapeString(doc.Subject), html.EscapeString(doc.Topic))

	papers := doc.Digest.Papers
	if len(papers) == 0 {
		b.WriteString("\nNo relevant papers this period.")
		return b.String()
	}

	fmt.Fprintf(&b, "%d relevant papers\n\n", len(papers))
	for i, sp := range papers {
		if i == topTitles {
			fmt.Fprintf(&b, "…and %d more", len(papers)-topTitles)
			break
		}
		line := fmt.Sprintf("%.1f <a href=\"%s\">%s</a>\n",
			sp.Score,
			html.EscapeString("https://arxiv.org/abs/"+domain.CanonicalID(sp.Paper.ID)),
			html.EscapeString(sp.Paper.Title))
		if b.Len()+len(line) > maxMessage-32 {
			b.WriteString("…")
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), secret, "<redacted>"))
}
