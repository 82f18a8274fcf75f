package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/storage"
)

// Dispatcher delivers an alert on a budget's channels. *alerts.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, budget *model.Budget, alert *model.BudgetAlert) alerts.Report
}

// Issuer creates at most one alert per budget per period and dispatches it.
// The guarantee comes from the ledger's atomic insert, so it holds across
// goroutines and processes sharing the store.
type Issuer struct {
	ledger     storage.AlertLedger
	budgets    storage.BudgetStore
	dispatcher Dispatcher
	now        func() time.Time
	recorder   Recorder
	logger     *slog.Logger
}

// NewIssuer creates an issuer. A nil clock uses time.Now; a nil recorder records nothing.
func NewIssuer(ledger storage.AlertLedger, budgets storage.BudgetStore, dispatcher Dispatcher, now func() time.Time, recorder Recorder, logger *slog.Logger) *Issuer {
	if now == nil {
		now = time.Now
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Issuer{
		ledger:     ledger,
		budgets:    budgets,
		dispatcher: dispatcher,
		now:        now,
		recorder:   recorder,
		logger:     logger,
	}
}

// IssueIfNeeded creates and dispatches an alert when status is over threshold
// and no alert exists yet for the current window. It returns nil when nothing
// was issued; losing a concurrent race is not an error.
func (i *Issuer) IssueIfNeeded(ctx context.Context, budget *model.Budget, status *BudgetStatus) (*model.BudgetAlert, error) {
	if !status.IsOverThreshold {
		return nil, nil
	}

	now := i.now().UTC()
	window, err := model.PeriodWindow(budget.Period, now)
	if err != nil {
		return nil, err
	}
	log := i.logger.With(
		"budget_id", budget.ID,
		"tenant_id", budget.TenantID,
		"period_start", window.Start,
	)

	if !window.Equal(status.Window) {
		log.Warn("stale budget status, alert not issued", "status_window", status.Window.String())
		i.recorder.RecordAlertSkipped("stale")
		return nil, nil
	}

	alertType := model.AlertThresholdExceeded
	if status.IsOverBudget {
		alertType = model.AlertBudgetExceeded
	}
	alert := &model.BudgetAlert{
		BudgetID:       budget.ID,
		AlertType:      alertType,
		CurrentAmount:  status.CurrentSpend,
		BudgetAmount:   budget.Amount,
		PercentageUsed: status.PercentageUsed,
		PeriodStart:    window.Start,
		PeriodEnd:      window.End,
		CreatedAt:      now,
	}

	inserted, err := i.ledger.InsertAlert(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("record alert: %w", err)
	}
	if !inserted {
		log.Debug("alert already issued for period")
		i.recorder.RecordAlertSkipped("duplicate")
		return nil, nil
	}
	i.recorder.RecordAlertIssued(string(alertType))
	log.Info("budget alert issued",
		"alert_id", alert.ID,
		"alert_type", alertType,
		"percentage_used", status.PercentageUsed.StringFixed(2),
	)

	// The row now holds the period slot; finish delivery and bookkeeping even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	report := i.dispatcher.Dispatch(ctx, budget, alert)
	alert.ChannelsUsed = report.Succeeded()
	alert.NotificationSent = len(alert.ChannelsUsed) > 0
	if alert.NotificationSent {
		sentAt := i.now().UTC()
		alert.NotificationSentAt = &sentAt
	}

	if err := i.ledger.UpdateAlertDelivery(ctx, alert.ID, alert.NotificationSent, alert.NotificationSentAt, alert.ChannelsUsed); err != nil {
		return alert, fmt.Errorf("record alert delivery: %w", err)
	}

	if !alert.NotificationSent {
		log.Error("budget alert not delivered on any channel", "alert_id", alert.ID)
		return alert, nil
	}
	if err := i.budgets.MarkAlertSent(ctx, budget.ID, *alert.NotificationSentAt); err != nil {
		log.Warn("update last alert time", "error", err)
	}
	return alert, nil
}
