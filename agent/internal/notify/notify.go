package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// HealthCheckMessage is sent by the notify-test command.
const HealthCheckMessage = "✅ Monitoring system health check - Telegram connection OK"

// Sink delivers one text message. It reports success rather than an error;
// failures are logged by the implementation.
type Sink interface {
	Send(ctx context.Context, text string) bool
}

// Multi delivers to every sink and succeeds only when all of them do.
type Multi []Sink

// Send implements Sink.
func (m Multi) Send(ctx context.Context, text string) bool {
	ok := true
	for _, s := range m {
		if !s.Send(ctx, text) {
			ok = false
		}
	}
	return ok
}

// Discard is a Sink that drops messages. Used for dry runs and when no
// channel is configured.
type Discard struct {
	Logger *slog.Logger
}

// Send implements Sink.
func (d Discard) Send(_ context.Context, text string) bool {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("notify: delivery skipped", "chars", len(text))
	return true
}

// ErrorNotification renders the message sent when a run aborts.
func ErrorNotification(err error, where string) string {
	var b strings.Builder
	b.WriteString("🚨 **Monitoring System Error**\n\n")
	fmt.Fprintf(&b, "**Error Type**: %T\n", unwrapAll(err))
	fmt.Fprintf(&b, "**Message**: %v\n", err)
	if where != "" {
		fmt.Fprintf(&b, "\n**Context**: %s", where)
	}
	b.WriteString("\n\nThe monitoring cycle failed to complete. Check logs for details.")
	return b.String()
}

func unwrapAll(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok || u.Unwrap() == nil {
			return err
		}
		err = u.Unwrap()
	}
}
