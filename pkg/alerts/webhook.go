package alerts

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
)

// WebhookChannel posts alerts as JSON to a budget's custom webhook.
type WebhookChannel struct {
	pool   *EndpointPool
	secret string
}

// NewWebhookChannel creates a generic webhook channel.
// If secret is non-empty, requests are signed with HMAC-SHA256.
func NewWebhookChannel(pool *EndpointPool, secret string) *WebhookChannel {
	return &WebhookChannel{pool: pool, secret: secret}
}

func (w *WebhookChannel) Kind() model.Channel { return model.ChannelWebhook }

func (w *WebhookChannel) Deliver(ctx context.Context, budget *model.Budget, alert *model.BudgetAlert) error {
	payload := webhookPayload{
		Event:          "budget_alert",
		BudgetID:       budget.ID,
		BudgetName:     budget.Name,
		AlertID:        alert.ID,
		AlertType:      alert.AlertType,
		Severity:       SeverityOf(alert),
		CurrentAmount:  json.Number(alert.CurrentAmount.StringFixed(2)),
		BudgetAmount:   json.Number(alert.BudgetAmount.StringFixed(2)),
		PercentageUsed: json.Number(alert.PercentageUsed.StringFixed(2)),
		PeriodStart:    alert.PeriodStart.UTC().Format(time.RFC3339),
		PeriodEnd:      alert.PeriodEnd.UTC().Format(time.RFC3339),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	header := http.Header{}
	header.Set("User-Agent", "Cloud-Budget-Guardian/1.0")
	if w.secret != "" {
		header.Set("X-Signature-256", "sha256="+computeHMAC(body, []byte(w.secret)))
	}

	if err := w.pool.PostJSON(ctx, budget.WebhookURL, body, header); err != nil {
		return fmt.Errorf("send webhook alert: %w", err)
	}
	return nil
}

type webhookPayload struct {
	Event          string          `json:"event"`
	BudgetID       string          `json:"budget_id"`
	BudgetName     string          `json:"budget_name"`
	AlertID        string          `json:"alert_id"`
	AlertType      model.AlertType `json:"alert_type"`
	Severity       Severity        `json:"severity"`
	CurrentAmount  json.Number     `json:"current_amount"`
	BudgetAmount   json.Number     `json:"budget_amount"`
	PercentageUsed json.Number     `json:"percentage_used"`
	PeriodStart    string          `json:"period_start"`
	PeriodEnd      string          `json:"period_end"`
	Timestamp      string          `json:"timestamp"`
}

func computeHMAC(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
