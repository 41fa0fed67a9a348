// Package notify delivers finished analysis reports to alerting channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/incidentstack/faultline/internal/models"
)

// SlackNotifier posts reports to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier constructs a notifier. An empty webhookURL yields a
// notifier whose Deliver is a no-op.
func NewSlackNotifier(webhookURL string, timeout time.Duration, logger *slog.Logger) *SlackNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Deliver posts a rendered report to the webhook. Non-2xx responses are
// returned as errors; the caller logs and moves on.
func (n *SlackNotifier) Deliver(ctx context.Context, report models.AnalysisReport) error {
	if n == nil || n.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"text": renderReport(report)})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack webhook returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	n.logger.Debug("report delivered", slog.String("correlation_id", report.CorrelationID))
	return nil
}

func renderReport(report models.AnalysisReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, ":rotating_light: *%s*\n", report.Summary)
	fmt.Fprintf(&sb, "Correlation: `%s`\n", report.CorrelationID)
	fmt.Fprintf(&sb, "Affected services: %s\n", strings.Join(report.AffectedServices, ", "))

	limit := len(report.Hypotheses)
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		h := report.Hypotheses[i]
		fmt.Fprintf(&sb, "%d. %s (%.0f%%)", i+1, h.Title, h.Confidence)
		if len(h.SuggestedActions) > 0 {
			fmt.Fprintf(&sb, " :arrow_right: %s", h.SuggestedActions[0])
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
