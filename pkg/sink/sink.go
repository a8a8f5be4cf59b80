package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/84hero/stream-gateway/internal/webhook"
	"github.com/84hero/stream-gateway/pkg/chain"
	"github.com/84hero/stream-gateway/pkg/event"
)

// Message is a formatted rendition of one transfer event. Human-facing sinks
// read Subject/Text; machine-facing sinks re-encode Event.
type Message struct {
	Subject string
	Text    string
	Event   event.TransferEvent
}

// Sink defines the interface for a notification destination. Format is pure;
// Deliver performs the network call and must honor ctx.
type Sink interface {
	Name() string
	Format(ev event.TransferEvent) (Message, error)
	Deliver(ctx context.Context, msg Message) error
	Close() error
}

// PermanentError marks a delivery failure that retrying cannot fix, such as
// rejected credentials or a malformed destination.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// statusErr converts a non-2xx HTTP response into a transient or permanent
// error. 429 and 5xx are worth retrying; other 4xx are not.
func statusErr(code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := fmt.Errorf("status %d", code)
	if code == http.StatusTooManyRequests || code >= 500 {
		return err
	}
	return Permanent(err)
}

// --- 1. Console Sink ---

type ConsoleSink struct {
	mu sync.Mutex
}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) Format(ev event.TransferEvent) (Message, error) {
	return Message{Text: summary(ev), Event: ev}, nil
}

func (c *ConsoleSink) Deliver(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.NewEncoder(os.Stdout).Encode(msg.Event)
}

func (c *ConsoleSink) Close() error { return nil }

// --- 2. File Sink ---

type FileSink struct {
	path string
	mu   sync.Mutex
	file *os.File
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileSink{path: path, file: f}, nil
}

func (f *FileSink) Name() string { return "file" }

func (f *FileSink) Format(ev event.TransferEvent) (Message, error) {
	return Message{Event: ev}, nil
}

func (f *FileSink) Deliver(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return json.NewEncoder(f.file).Encode(msg.Event)
}

func (f *FileSink) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// --- 3. Slack Sink ---

type SlackSink struct {
	hookURL    string
	httpClient *http.Client
}

func NewSlackSink(hookURL string) *SlackSink {
	return &SlackSink{
		hookURL:    hookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Format(ev event.TransferEvent) (Message, error) {
	return Message{
		Subject: fmt.Sprintf("New %s transfer", tokenLabel(ev)),
		Text:    summary(ev),
		Event:   ev,
	}, nil
}

func (s *SlackSink) Deliver(ctx context.Context, msg Message) error {
	ev := msg.Event
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]interface{}{"type": "plain_text", "text": msg.Subject, "emoji": true},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": "*Amount:*\n" + amount(ev)},
					{"type": "mrkdwn", "text": "*Chain:*\n" + chain.DisplayName(ev.ChainID)},
					{"type": "mrkdwn", "text": "*From:*\n`" + ev.From + "`"},
					{"type": "mrkdwn", "text": "*To:*\n`" + ev.To + "`"},
					{"type": "mrkdwn", "text": "*Tx:*\n`" + ev.TransactionHash + "`"},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.hookURL, bytes.NewReader(body))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusErr(resp.StatusCode)
}

func (s *SlackSink) Close() error { return nil }

// --- 4. Social Sink ---

// SocialSink posts a short status update to a bearer-token JSON API.
type SocialSink struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

func NewSocialSink(apiURL, token string) *SocialSink {
	return &SocialSink{
		apiURL:     apiURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SocialSink) Name() string { return "social" }

func (s *SocialSink) Format(ev event.TransferEvent) (Message, error) {
	// Status APIs cap post length; the summary plus a hashtag stays well
	// under typical limits.
	text := summary(ev)
	if ev.TokenSymbol != "" {
		text += " #" + ev.TokenSymbol
	}
	return Message{Text: text, Event: ev}, nil
}

func (s *SocialSink) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]string{"text": msg.Text})
	if err != nil {
		return Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL, bytes.NewReader(body))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusErr(resp.StatusCode)
}

func (s *SocialSink) Close() error { return nil }

// --- 5. Email Sink ---

type EmailSink struct {
	host     string // SMTP host:port
	username string
	password string
	from     string
	to       []string
}

func NewEmailSink(host, username, password, from string, to []string) *EmailSink {
	return &EmailSink{host: host, username: username, password: password, from: from, to: to}
}

func (e *EmailSink) Name() string { return "email" }

func (e *EmailSink) Format(ev event.TransferEvent) (Message, error) {
	return Message{
		Subject: fmt.Sprintf("Transfer alert: %s", amount(ev)),
		Text: fmt.Sprintf("A transfer matching your stream was confirmed.\r\n\r\n"+
			"Amount: %s\r\nFrom:   %s\r\nTo:     %s\r\nChain:  %s\r\nTx:     %s\r\n",
			amount(ev), ev.From, ev.To, chain.DisplayName(ev.ChainID), ev.TransactionHash),
		Event: ev,
	}, nil
}

func (e *EmailSink) Deliver(ctx context.Context, msg Message) error {
	// net/smtp has no context support; the dispatcher's per-attempt timeout
	// bounds the handler, not this dial.
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", e.from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n\r\n", msg.Subject)
	buf.WriteString(msg.Text)

	var auth smtp.Auth
	if e.username != "" {
		host := e.host
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", e.username, e.password, host)
	}
	return smtp.SendMail(e.host, auth, e.from, e.to, buf.Bytes())
}

func (e *EmailSink) Close() error { return nil }

// --- 6. Forward Sink ---

// ForwardSink re-publishes events to a downstream webhook through the signed
// client, for consumers that want the raw normalized record instead of a
// rendered message.
type ForwardSink struct {
	client *webhook.Client
}

func NewForwardSink(url, secret string) *ForwardSink {
	return &ForwardSink{
		// One attempt here: the dispatcher owns retry policy.
		client: webhook.NewClient(webhook.Config{URL: url, Secret: secret, MaxAttempts: 1}),
	}
}

func (f *ForwardSink) Name() string { return "forward" }

func (f *ForwardSink) Format(ev event.TransferEvent) (Message, error) {
	return Message{Event: ev}, nil
}

func (f *ForwardSink) Deliver(ctx context.Context, msg Message) error {
	return f.client.Send(ctx, []event.TransferEvent{msg.Event})
}

func (f *ForwardSink) Close() error { return nil }

func tokenLabel(ev event.TransferEvent) string {
	switch {
	case ev.TokenSymbol != "":
		return ev.TokenSymbol
	case ev.TokenName != "":
		return ev.TokenName
	}
	return "token"
}
