package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Webhook kinds.
const (
	KindSlack = "slack"
	KindTeams = "teams"
	KindHTTP  = "http"
)

// Webhook posts reports to a Slack, Teams or generic JSON endpoint.
type Webhook struct {
	kind   string
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook returns a webhook sink. An unknown kind is rejected.
func NewWebhook(kind, url string, logger *slog.Logger) (*Webhook, error) {
	switch kind {
	case KindSlack, KindTeams, KindHTTP:
	default:
		return nil, fmt.Errorf("notify: unknown webhook type %q", kind)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		kind:   kind,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}, nil
}

// Send implements Sink.
func (w *Webhook) Send(ctx context.Context, text string) bool {
	body, err := w.payload(text)
	if err == nil {
		err = w.post(ctx, body)
	}
	if err != nil {
		w.logger.Error("notify: webhook delivery failed", "type", w.kind, "err", err)
		return false
	}
	w.logger.Debug("notify: webhook delivered", "type", w.kind)
	return true
}

func (w *Webhook) payload(text string) ([]byte, error) {
	level := headline(text)
	switch w.kind {
	case KindSlack:
		return json.Marshal(map[string]string{
			"text": fmt.Sprintf("*%s* %s", severityLabel(level), text),
		})
	case KindTeams:
		return json.Marshal(map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": severityColor(level),
			"summary":    "Infrastructure Health Report",
			"title":      "Infrastructure Health Report",
			"text":       text,
		})
	default:
		return json.Marshal(map[string]any{
			"severity": level,
			"report":   text,
			"sent_at":  time.Now().UTC(),
		})
	}
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// headline reads the severity marker a report starts with.
func headline(text string) string {
	switch {
	case strings.HasPrefix(text, "🔴"), strings.HasPrefix(text, "🚨"):
		return "critical"
	case strings.HasPrefix(text, "🟡"), strings.HasPrefix(text, "⚪"):
		return "warning"
	default:
		return "info"
	}
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
