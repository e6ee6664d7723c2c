package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultTelegramAPI is the Bot API base URL.
	DefaultTelegramAPI = "https://api.telegram.org"

	// MaxChunk leaves headroom under Telegram's 4096 character limit.
	MaxChunk = 4000

	maxAttempts = 3
	chunkPause  = time.Second
)

// Telegram sends messages through the Bot API sendMessage method.
type Telegram struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
	logger  *slog.Logger

	pause time.Duration
	sleep func(context.Context, time.Duration) error
}

// TelegramOption customises a Telegram sink.
type TelegramOption func(*Telegram)

// WithBaseURL points the client at a different Bot API host.
func WithBaseURL(u string) TelegramOption {
	return func(t *Telegram) { t.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) { t.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) TelegramOption {
	return func(t *Telegram) { t.logger = l }
}

// NewTelegram returns a Telegram sink for one chat.
func NewTelegram(token, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		baseURL: DefaultTelegramAPI,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
		pause:   chunkPause,
		sleep:   sleepCtx,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// apiError is a non-2xx answer from the Bot API.
type apiError struct {
	status      int
	description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram: HTTP %d: %s", e.status, e.description)
}

func isEntityParseError(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.status == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(ae.description), "can't parse entities")
}

// Send implements Sink. Markdown is tried first; if Telegram cannot parse
// the entities the whole message is resent as plain text.
func (t *Telegram) Send(ctx context.Context, text string) bool {
	err := t.sendAll(ctx, text, "Markdown")
	if isEntityParseError(err) {
		t.logger.Warn("notify: telegram rejected markdown, retrying as plain text", "err", err)
		err = t.sendAll(ctx, text, "")
	}
	if err != nil {
		t.logger.Error("notify: telegram send failed", "err", err)
		return false
	}
	t.logger.Info("notify: telegram message sent", "chars", len(text))
	return true
}

func (t *Telegram) sendAll(ctx context.Context, text, parseMode string) error {
	chunks := Split(text, MaxChunk)
	if len(chunks) > 1 {
		t.logger.Info("notify: sending message in chunks", "chunks", len(chunks))
	}
	for i, c := range chunks {
		if i > 0 {
			if err := t.sleep(ctx, t.pause); err != nil {
				return err
			}
		}
		if err := t.sendWithRetry(ctx, c, parseMode); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// sendWithRetry retries transport failures and server errors. Client errors
// are returned immediately.
func (t *Telegram) sendWithRetry(ctx context.Context, text, parseMode string) error {
	bo := newBackoff()
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = t.sendMessage(ctx, text, parseMode)
		var ae *apiError
		if err == nil || (errors.As(err, &ae) && ae.status < 500 && ae.status != http.StatusTooManyRequests) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		d := bo.next()
		t.logger.Warn("notify: telegram send failed, retrying", "attempt", attempt, "backoff", d, "err", err)
		if serr := t.sleep(ctx, d); serr != nil {
			return serr
		}
	}
	return err
}

func (t *Telegram) sendMessage(ctx context.Context, text, parseMode string) error {
	payload := map[string]string{"chat_id": t.chatID, "text": text}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: encode: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var r struct {
			Description string `json:"description"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &r) != nil || r.Description == "" {
			r.Description = strings.TrimSpace(string(raw))
		}
		return &apiError{status: resp.StatusCode, description: r.Description}
	}
	return nil
}

// Split breaks text at newline boundaries into chunks of at most max
// characters. A single line longer than max is cut into max-sized pieces.
func Split(text string, max int) []string {
	if utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		for n > max {
			flush()
			r := []rune(line)
			chunks = append(chunks, string(r[:max]))
			line = string(r[max:])
			n -= max
		}
		if curLen > 0 && curLen+1+n > max {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte('\n')
			curLen++
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
