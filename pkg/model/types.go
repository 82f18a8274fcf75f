package model

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidBudget is returned when a budget definition violates its own constraints.
	ErrInvalidBudget = errors.New("invalid budget")

	// ErrChannelNotConfigured is returned when a budget lists a channel without the
	// configuration that channel needs (recipients or URL).
	ErrChannelNotConfigured = errors.New("notification channel not configured")
)

// DefaultThresholdPct is applied when a budget does not set its own threshold.
const DefaultThresholdPct = 80

// BudgetPeriod defines the recurring cadence a budget resets on.
type BudgetPeriod string

const (
	PeriodDaily     BudgetPeriod = "daily"
	PeriodWeekly    BudgetPeriod = "weekly"
	PeriodMonthly   BudgetPeriod = "monthly"
	PeriodQuarterly BudgetPeriod = "quarterly"
	PeriodAnnually  BudgetPeriod = "annually"
)

// Channel is a notification transport.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSlack   Channel = "slack"   // chat webhook
	ChannelWebhook Channel = "webhook" // generic webhook
)

// Channels lists every known channel in delivery order.
var Channels = []Channel{ChannelEmail, ChannelSlack, ChannelWebhook}

// Known reports whether c is one of the supported channels.
func (c Channel) Known() bool {
	return slices.Contains(Channels, c)
}

// AlertType classifies a budget alert.
type AlertType string

const (
	AlertThresholdExceeded AlertType = "threshold_exceeded"
	AlertBudgetExceeded    AlertType = "budget_exceeded"
)

// Budget is a recurring spend cap, optionally scoped to an account, service or region.
// An empty scope field matches everything.
type Budget struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	AccountID   string          `json:"account_id,omitempty"`
	ServiceName string          `json:"service_name,omitempty"`
	Region      string          `json:"region,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"budget_amount"`
	Period      BudgetPeriod    `json:"period"`

	ThresholdPct       int       `json:"threshold_percentage"`
	Channels           []Channel `json:"notification_channels"`
	NotificationEmails []string  `json:"notification_emails,omitempty"`
	SlackWebhookURL    string    `json:"slack_webhook_url,omitempty"`
	WebhookURL         string    `json:"custom_webhook_url,omitempty"`

	IsActive        bool       `json:"is_active"`
	LastAlertSentAt *time.Time `json:"last_alert_sent_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ApplyDefaults fills in the threshold and period when they are unset.
func (b *Budget) ApplyDefaults() {
	if b.ThresholdPct == 0 {
		b.ThresholdPct = DefaultThresholdPct
	}
	if b.Period == "" {
		b.Period = PeriodMonthly
	}
}

// Filter returns the spend dimensions this budget is scoped to.
func (b *Budget) Filter() SpendFilter {
	return SpendFilter{
		AccountID: b.AccountID,
		Service:   b.ServiceName,
		Region:    b.Region,
	}
}

// HasChannel reports whether the budget lists c among its notification channels.
func (b *Budget) HasChannel(c Channel) bool {
	return slices.Contains(b.Channels, c)
}

// ChannelConfigured reports whether the per-budget configuration for c is present.
func (b *Budget) ChannelConfigured(c Channel) bool {
	switch c {
	case ChannelEmail:
		return len(b.NotificationEmails) > 0
	case ChannelSlack:
		return b.SlackWebhookURL != ""
	case ChannelWebhook:
		return b.WebhookURL != ""
	default:
		return false
	}
}

// Validate checks the budget definition. Errors wrap ErrInvalidBudget,
// ErrInvalidPeriod or ErrChannelNotConfigured.
func (b *Budget) Validate() error {
	if b.TenantID == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidBudget)
	}
	if b.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidBudget)
	}
	if b.ThresholdPct < 1 || b.ThresholdPct > 100 {
		return fmt.Errorf("%w: threshold %d outside 1..100", ErrInvalidBudget, b.ThresholdPct)
	}
	if _, err := PeriodWindow(b.Period, time.Now()); err != nil {
		return err
	}
	for _, c := range b.Channels {
		if !c.Known() {
			return fmt.Errorf("%w: unknown channel %q", ErrInvalidBudget, c)
		}
		if !b.ChannelConfigured(c) {
			return fmt.Errorf("%w: %s", ErrChannelNotConfigured, c)
		}
	}
	return nil
}

// SpendFilter narrows a spend aggregation. Empty fields match everything.
type SpendFilter struct {
	AccountID string `json:"account_id,omitempty"`
	Service   string `json:"service,omitempty"`
	Region    string `json:"region,omitempty"`
}

// BudgetAlert is an immutable record of one notification event for one period.
type BudgetAlert struct {
	ID             string          `json:"id"`
	BudgetID       string          `json:"budget_id"`
	AlertType      AlertType       `json:"alert_type"`
	CurrentAmount  decimal.Decimal `json:"current_amount"`
	BudgetAmount   decimal.Decimal `json:"budget_amount"`
	PercentageUsed decimal.Decimal `json:"percentage_used"`
	PeriodStart    time.Time       `json:"period_start"`
	PeriodEnd      time.Time       `json:"period_end"`

	NotificationSent   bool       `json:"notification_sent"`
	NotificationSentAt *time.Time `json:"notification_sent_at,omitempty"`
	ChannelsUsed       []Channel  `json:"notification_channels_used"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Window returns the period the alert pertains to.
func (a *BudgetAlert) Window() Window {
	return Window{Start: a.PeriodStart, End: a.PeriodEnd}
}

// CostRecord is one daily cost observation. It is consumed only through aggregate queries.
type CostRecord struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	AccountID string            `json:"account_id,omitempty"`
	Date      time.Time         `json:"date"`
	Service   string            `json:"service"`
	Region    string            `json:"region,omitempty"`
	UsageType string            `json:"usage_type,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Cost      decimal.Decimal   `json:"cost"`
	Currency  string            `json:"currency"`
}
