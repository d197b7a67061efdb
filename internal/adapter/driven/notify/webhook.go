// Package notify implements the Notifier port.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
	"github.com/ericfisherdev/lmsnotify/internal/domain/port/driven"
)

const (
	embedTitle = "🔔 New LMS Updates"
	embedColor = 0x00ff00

	// Discord rejects messages with more than 25 fields per embed or 10 embeds.
	maxFieldsPerEmbed = 25
	maxEmbeds         = 10
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*WebhookNotifier)(nil)

// WebhookNotifier posts notifications to a Discord-compatible webhook,
// mentioning the user so the message reaches them.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier. The http.Client timeout
// bounds each delivery, so it must be positive.
func NewWebhookNotifier(url string, timeout time.Duration) (*WebhookNotifier, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("webhook timeout must be positive, got %s", timeout)
	}
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: timeout}}, nil
}

// NewWebhookNotifierWithHTTPClient creates a WebhookNotifier with a custom
// http.Client. This constructor is intended for testing.
func NewWebhookNotifierWithHTTPClient(url string, client *http.Client) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: client}
}

type webhookMessage struct {
	Content         string          `json:"content"`
	Embeds          []webhookEmbed  `json:"embeds,omitempty"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type webhookEmbed struct {
	Title  string         `json:"title"`
	Color  int            `json:"color"`
	Fields []webhookField `json:"fields"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type allowedMentions struct {
	Users []string `json:"users"`
}

// NotifyEvents posts one message listing every event, split across embeds
// when there are more events than one embed can hold.
func (n *WebhookNotifier) NotifyEvents(ctx context.Context, userID string, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	return n.post(ctx, buildEventsMessage(userID, events))
}

// NotifyReregister asks the user to register again.
func (n *WebhookNotifier) NotifyReregister(ctx context.Context, userID string, kind model.ErrorKind) error {
	return n.post(ctx, webhookMessage{
		Content:         mention(userID) + " " + reregisterText(kind),
		AllowedMentions: allowedMentions{Users: []string{userID}},
	})
}

func (n *WebhookNotifier) post(ctx context.Context, msg webhookMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildEventsMessage(userID string, events []model.Event) webhookMessage {
	var embeds []webhookEmbed
	for start := 0; start < len(events) && len(embeds) < maxEmbeds; start += maxFieldsPerEmbed {
		end := min(start+maxFieldsPerEmbed, len(events))
		embed := webhookEmbed{Title: embedTitle, Color: embedColor}
		for _, e := range events[start:end] {
			embed.Fields = append(embed.Fields, webhookField{Name: "\u200b", Value: e.Summary()})
		}
		embeds = append(embeds, embed)
	}

	if dropped := len(events) - maxEmbeds*maxFieldsPerEmbed; dropped > 0 {
		slog.Warn("webhook message truncated", "user_id", userID, "dropped_events", dropped)
	}

	return webhookMessage{
		Content:         mention(userID),
		Embeds:          embeds,
		AllowedMentions: allowedMentions{Users: []string{userID}},
	}
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func reregisterText(kind model.ErrorKind) string {
	if kind == model.ErrorKindCredential {
		return "Your stored LMS credentials could not be read. Please register again with `!register`."
	}
	return "The LMS rejected your stored credentials. Please register again with `!register`."
}
