// Package slack posts referral hand-offs to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/intake/internal/triage"
)

const (
	maxTextLen  = 2000
	httpTimeout = 10 * time.Second
)

// Notifier sends resolved referral sessions to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

// Send posts a session hand-off to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, rec *triage.Record) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(rec))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "referral hand-off sent", "session_id", rec.ID, "outcome", outcomeKind(rec))
	return nil
}

func buildMessage(r *triage.Record) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(r),
			fieldsBlock(r),
			{"type": "divider"},
			questionBlock(r),
			clarificationsBlock(r),
			contextBlock(r),
		},
	}
}

func headerBlock(r *triage.Record) map[string]any {
	title := "\U0001fa7a Medical referral" // stethoscope
	if outcomeKind(r) == triage.OutcomeClarificationExhausted {
		title = "\U0001f7e1 Clarification exhausted" // yellow circle
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": title,
		},
	}
}

func fieldsBlock(r *triage.Record) map[string]any {
	s := r.Session
	typ, confidence := "n/a", "n/a"
	if s.LastClassification != nil {
		typ = fmt.Sprintf("%s / %s", s.LastClassification.Category, s.LastClassification.Type)
		confidence = fmt.Sprintf("%.2f", s.LastClassification.Confidence)
	}

	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("*Classification:* %s", typ)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Confidence:* %s", confidence)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Clarification rounds:* %d", s.AttemptsUsed)},
		},
	}
}

func questionBlock(r *triage.Record) map[string]any {
	text := fmt.Sprintf("*Question*\n%s", quote(truncate(r.Session.OriginalQuestion, maxTextLen)))
	if r.Session.Summary != "" {
		text += fmt.Sprintf("\n\n*Summary*\n%s", quote(truncate(r.Session.Summary, maxTextLen)))
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func clarificationsBlock(r *triage.Record) map[string]any {
	text := "_No clarifications._"
	if len(r.Session.Clarifications) > 0 {
		var b strings.Builder
		b.WriteString("*Clarifications*")
		for i, c := range r.Session.Clarifications {
			fmt.Fprintf(&b, "\n%d. %s", i+1, truncate(c, maxTextLen/4))
		}
		text = b.String()
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func contextBlock(r *triage.Record) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("intake • session %s • %s", r.ID, r.UpdatedAt.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func outcomeKind(r *triage.Record) triage.OutcomeKind {
	if r.Session.Outcome == nil {
		return ""
	}
	return r.Session.Outcome.Kind
}

func quote(s string) string {
	if s == "" {
		return "> _(empty)_"
	}
	return "> " + strings.ReplaceAll(s, "\n", "\n> ")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
