package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a budget or alert lookup has no match.
var ErrNotFound = errors.New("not found")

// CostQuery narrows a cost record listing.
type CostQuery struct {
	TenantID string
	Window   model.Window
	Filter   model.SpendFilter
	Limit    int
}

// CostStore is the read side of the cost record store plus the local ingestion path.
type CostStore interface {
	// RecordCost persists a single cost record.
	RecordCost(ctx context.Context, record *model.CostRecord) error

	// SumCost returns the total cost for a tenant in the window under the filter.
	// It returns zero when no records match.
	SumCost(ctx context.Context, tenantID string, window model.Window, filter model.SpendFilter) (decimal.Decimal, error)

	// QueryCosts lists cost records, newest first.
	QueryCosts(ctx context.Context, q CostQuery) ([]model.CostRecord, error)
}

// BudgetStore persists budget definitions.
type BudgetStore interface {
	// PutBudget creates or updates a budget.
	PutBudget(ctx context.Context, budget *model.Budget) error

	// GetBudget retrieves a budget by ID.
	GetBudget(ctx context.Context, id string) (*model.Budget, error)

	// ListBudgets returns every budget of a tenant, or all budgets if tenantID is empty.
	ListBudgets(ctx context.Context, tenantID string) ([]model.Budget, error)

	// ListActiveBudgets returns the active budgets of a tenant.
	ListActiveBudgets(ctx context.Context, tenantID string) ([]model.Budget, error)

	// MarkAlertSent records when the budget last had an alert delivered.
	MarkAlertSent(ctx context.Context, id string, at time.Time) error
}

// AlertLedger stores issued alerts. At most one alert exists per
// (budget_id, period_start, period_end).
type AlertLedger interface {
	// InsertAlert stores the alert unless one already exists for its budget and window.
	// inserted is false when another alert holds the slot; that is not an error.
	InsertAlert(ctx context.Context, alert *model.BudgetAlert) (inserted bool, err error)

	// UpdateAlertDelivery records the dispatch outcome of an alert.
	UpdateAlertDelivery(ctx context.Context, id string, sent bool, sentAt *time.Time, channels []model.Channel) error

	// GetAlertForPeriod returns the alert held for the budget and window.
	GetAlertForPeriod(ctx context.Context, budgetID string, window model.Window) (*model.BudgetAlert, error)

	// ListAlerts returns a budget's alerts, newest first. limit <= 0 means no limit.
	ListAlerts(ctx context.Context, budgetID string, limit int) ([]model.BudgetAlert, error)
}

// Storage is the full persistence layer.
type Storage interface {
	CostStore
	BudgetStore
	AlertLedger

	// Close releases resources.
	Close() error
}
