// Package notify delivers rendered reports to operator channels.
//
// Every channel implements Sink. Telegram is the primary channel: long
// reports are split at line boundaries into chunks Telegram accepts, and a
// report whose Markdown Telegram rejects is resent as plain text. Webhook
// posts the same text to Slack, Microsoft Teams or a generic HTTP endpoint.
// Multi fans one report out to several sinks.
package notify
