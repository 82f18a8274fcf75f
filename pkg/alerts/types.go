package alerts

import (
	"context"
	"errors"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/shopspring/decimal"
)

// ErrChannelUnavailable is reported when a budget lists a channel that has no
// registered transport, e.g. email without an SMTP host.
var ErrChannelUnavailable = errors.New("notification channel unavailable")

// Severity tiers message content. It does not change delivery.
type Severity string

const (
	SeverityWarning  Severity = "warning"  // At or past the budget threshold
	SeverityCritical Severity = "critical" // At or past the full budget
)

var hundred = decimal.NewFromInt(100)

// SeverityOf returns critical once the alert's percentage reaches 100, warning otherwise.
func SeverityOf(alert *model.BudgetAlert) Severity {
	if alert.PercentageUsed.GreaterThanOrEqual(hundred) {
		return SeverityCritical
	}
	return SeverityWarning
}

// Channel delivers an alert over one transport.
type Channel interface {
	// Kind returns the budget channel this transport serves.
	Kind() model.Channel

	// Deliver sends one alert. Implementations must be safe for concurrent use
	// and must honour ctx cancellation.
	Deliver(ctx context.Context, budget *model.Budget, alert *model.BudgetAlert) error
}

// DeliveryRecorder observes the outcome of each channel attempt.
type DeliveryRecorder interface {
	RecordDelivery(channel, outcome string, seconds float64)
}
