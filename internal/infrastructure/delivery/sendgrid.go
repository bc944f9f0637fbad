package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"ArxivDigest/internal/config"
	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/ports"
)

const (
	defaultSendGridHost = "https://api.sendgrid.com"
	mailSendPath        = "/v3/mail/send"
	sendTimeout         = 30 * time.Second
)

// SendGridSink mails the digest through the SendGrid v3 API.
type SendGridSink struct {
	host   string
	apiKey string
	from   string
	to     []string
}

var _ ports.Sink = (*SendGridSink)(nil)

// NewSendGridSink reads credentials and addresses from config. To may hold
// several comma-separated recipients. Endpoint is the API host; a full
// mail-send URL is accepted too.
func NewSendGridSink(cfg config.EmailConfig) *SendGridSink {
	host := strings.TrimSuffix(strings.TrimSuffix(cfg.Endpoint, "/"), mailSendPath)
	if host == "" {
		host = defaultSendGridHost
	}

	var to []string
	for _, addr := range strings.Split(cfg.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}

	return &SendGridSink{
		host:   host,
		apiKey: cfg.APIKey,
		from:   strings.TrimSpace(cfg.From),
		to:     to,
	}
}

// Name identifies the sink in logs.
func (s *SendGridSink) Name() string { return "sendgrid" }

func (s *SendGridSink) message(doc domain.Document) *mail.SGMailV3 {
	p := mail.NewPersonalization()
	for _, addr := range s.to {
		p.AddTos(mail.NewEmail("", addr))
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail("", s.from))
	m.Subject = doc.Subject
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/html", string(doc.HTML)))
	return m
}

// Deliver sends one HTML mail to every recipient.
func (s *SendGridSink) Deliver(ctx context.Context, doc domain.Document) error {
	if s.apiKey == "" || s.from == "" || len(s.to) == 0 {
		return fmt.Errorf("sendgrid sink misconfigured")
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	request := sendgrid.GetRequest(s.apiKey, mailSendPath, s.host)
	request.Method = "POST"
	client := &sendgrid.Client{Request: request}

	resp, err := client.SendWithContext(ctx, s.message(doc))
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := resp.Body
		if len(body) > 1024 {
			body = body[:1024]
		}
		return fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, strings.TrimSpace(body))
	}
	return nil
}
