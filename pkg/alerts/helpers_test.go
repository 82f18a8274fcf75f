package alerts_test

import (
	"io"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBudget() *model.Budget {
	return &model.Budget{
		ID:                 "budget-1",
		TenantID:           "tenant-a",
		Name:               "prod",
		Amount:             decimal.NewFromInt(1000),
		Period:             model.PeriodMonthly,
		ThresholdPct:       80,
		Channels:           []model.Channel{model.ChannelEmail, model.ChannelSlack, model.ChannelWebhook},
		NotificationEmails: []string{"ops@example.com", "finance@example.com"},
		SlackWebhookURL:    "https://hooks.slack.invalid/services/x",
		WebhookURL:         "https://hooks.example.invalid/budget",
		IsActive:           true,
	}
}

func testAlert(pct int64) *model.BudgetAlert {
	amount := decimal.NewFromInt(1000)
	current := amount.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100))
	alertType := model.AlertThresholdExceeded
	if pct >= 100 {
		alertType = model.AlertBudgetExceeded
	}
	return &model.BudgetAlert{
		ID:             "alert-1",
		BudgetID:       "budget-1",
		AlertType:      alertType,
		CurrentAmount:  current,
		BudgetAmount:   amount,
		PercentageUsed: decimal.NewFromInt(pct),
		PeriodStart:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}
