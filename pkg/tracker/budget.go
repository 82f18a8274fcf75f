package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// ErrBudgetInactive is returned when evaluation is requested for an inactive budget.
var ErrBudgetInactive = errors.New("budget is inactive")

const defaultMaxConcurrency = 4

// BudgetManager is the entry point for evaluating budgets and issuing alerts.
type BudgetManager struct {
	budgets        storage.BudgetStore
	ledger         storage.AlertLedger
	evaluator      *Evaluator
	issuer         *Issuer
	maxConcurrency int
	recorder       Recorder
	logger         *slog.Logger
}

type managerOptions struct {
	now            func() time.Time
	queryTimeout   time.Duration
	maxConcurrency int
	recorder       Recorder
}

// Option configures a BudgetManager.
type Option func(*managerOptions)

// WithClock sets the time source used for windows and day counts.
func WithClock(now func() time.Time) Option {
	return func(o *managerOptions) { o.now = now }
}

// WithQueryTimeout bounds each spend aggregation query.
func WithQueryTimeout(d time.Duration) Option {
	return func(o *managerOptions) { o.queryTimeout = d }
}

// WithMaxConcurrency caps the budgets processed in parallel by CheckAllAndAlert.
func WithMaxConcurrency(n int) Option {
	return func(o *managerOptions) { o.maxConcurrency = n }
}

// WithRecorder sets the instrumentation sink.
func WithRecorder(r Recorder) Option {
	return func(o *managerOptions) { o.recorder = r }
}

// NewBudgetManager creates a budget manager over the store and dispatcher.
func NewBudgetManager(store storage.Storage, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *BudgetManager {
	o := managerOptions{
		now:            time.Now,
		queryTimeout:   30 * time.Second,
		maxConcurrency: defaultMaxConcurrency,
		recorder:       nopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxConcurrency < 1 {
		o.maxConcurrency = 1
	}

	spend := NewSpendAggregator(store, o.queryTimeout)
	return &BudgetManager{
		budgets:        store,
		ledger:         store,
		evaluator:      NewEvaluator(spend, o.now),
		issuer:         NewIssuer(store, store, dispatcher, o.now, o.recorder, logger),
		maxConcurrency: o.maxConcurrency,
		recorder:       o.recorder,
		logger:         logger,
	}
}

// Evaluate returns the current status of a budget without side effects.
func (m *BudgetManager) Evaluate(ctx context.Context, budgetID string) (*BudgetStatus, error) {
	budget, err := m.activeBudget(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	return m.evaluate(ctx, budget)
}

// CheckAndAlert evaluates a budget and issues an alert if it crossed its
// threshold and none was issued this period. It returns nil when no alert was issued.
func (m *BudgetManager) CheckAndAlert(ctx context.Context, budgetID string) (*model.BudgetAlert, error) {
	budget, err := m.activeBudget(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	_, alert, err := m.check(ctx, budget)
	return alert, err
}

// BudgetFailure records a budget that could not be checked in a batch.
type BudgetFailure struct {
	BudgetID string
	Err      error
}

func (f BudgetFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		BudgetID string `json:"budget_id"`
		Error    string `json:"error"`
	}{f.BudgetID, f.Err.Error()})
}

// BatchResult is the outcome of checking every active budget of a tenant.
type BatchResult struct {
	TenantID string               `json:"tenant_id"`
	Statuses []*BudgetStatus      `json:"statuses"`
	Alerts   []*model.BudgetAlert `json:"alerts"`
	Failures []BudgetFailure      `json:"failures"`
}

// CheckAllAndAlert runs CheckAndAlert over the tenant's active budgets in
// parallel. A failing budget is reported in Failures and does not stop the
// others; the returned error covers only listing the budgets.
func (m *BudgetManager) CheckAllAndAlert(ctx context.Context, tenantID string) (*BatchResult, error) {
	start := time.Now()
	budgets, err := m.budgets.ListActiveBudgets(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list active budgets: %w", err)
	}

	type outcome struct {
		status *BudgetStatus
		alert  *model.BudgetAlert
		err    error
	}
	outcomes := make([]outcome, len(budgets))

	var g errgroup.Group
	g.SetLimit(m.maxConcurrency)
	for idx := range budgets {
		g.Go(func() error {
			status, alert, err := m.check(ctx, &budgets[idx])
			outcomes[idx] = outcome{status: status, alert: alert, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{
		TenantID: tenantID,
		Statuses: []*BudgetStatus{},
		Alerts:   []*model.BudgetAlert{},
		Failures: []BudgetFailure{},
	}
	for idx, o := range outcomes {
		if o.status != nil {
			result.Statuses = append(result.Statuses, o.status)
		}
		if o.alert != nil {
			result.Alerts = append(result.Alerts, o.alert)
		}
		if o.err != nil {
			m.logger.Error("budget check failed",
				"tenant_id", tenantID,
				"budget_id", budgets[idx].ID,
				"error", o.err,
			)
			result.Failures = append(result.Failures, BudgetFailure{BudgetID: budgets[idx].ID, Err: o.err})
		}
	}

	m.recorder.RecordBatch(time.Since(start).Seconds(), len(result.Failures))
	m.logger.Info("tenant budgets checked",
		"tenant_id", tenantID,
		"budgets", len(budgets),
		"alerts", len(result.Alerts),
		"failures", len(result.Failures),
	)
	return result, nil
}

// check validates, evaluates and issues for one budget. The status is returned
// even when issuing fails.
func (m *BudgetManager) check(ctx context.Context, budget *model.Budget) (*BudgetStatus, *model.BudgetAlert, error) {
	if err := budget.Validate(); err != nil {
		return nil, nil, fmt.Errorf("budget %s: %w", budget.ID, err)
	}
	status, err := m.evaluate(ctx, budget)
	if err != nil {
		return nil, nil, err
	}
	alert, err := m.issuer.IssueIfNeeded(ctx, budget, status)
	if err != nil {
		return status, alert, fmt.Errorf("budget %s: %w", budget.ID, err)
	}
	return status, alert, nil
}

func (m *BudgetManager) evaluate(ctx context.Context, budget *model.Budget) (*BudgetStatus, error) {
	status, err := m.evaluator.Evaluate(ctx, budget)
	if err != nil {
		m.recorder.RecordEvaluation(budget.TenantID, budget.ID, 0, err)
		return nil, fmt.Errorf("evaluate budget %s: %w", budget.ID, err)
	}
	m.recorder.RecordEvaluation(budget.TenantID, budget.ID, status.PercentageUsed.InexactFloat64(), nil)
	m.logger.Debug("budget evaluated",
		"budget_id", budget.ID,
		"tenant_id", budget.TenantID,
		"period_start", status.Window.Start,
		"spend", status.CurrentSpend.String(),
		"percentage_used", status.PercentageUsed.StringFixed(2),
	)
	return status, nil
}

func (m *BudgetManager) activeBudget(ctx context.Context, budgetID string) (*model.Budget, error) {
	budget, err := m.budgets.GetBudget(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if !budget.IsActive {
		return nil, fmt.Errorf("budget %s: %w", budgetID, ErrBudgetInactive)
	}
	return budget, nil
}

// ListAlerts returns a budget's alert history, newest first.
func (m *BudgetManager) ListAlerts(ctx context.Context, budgetID string, limit int) ([]model.BudgetAlert, error) {
	if _, err := m.budgets.GetBudget(ctx, budgetID); err != nil {
		return nil, err
	}
	alerts, err := m.ledger.ListAlerts(ctx, budgetID, limit)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []model.BudgetAlert{}
	}
	return alerts, nil
}
