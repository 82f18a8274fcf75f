package tracker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// BudgetStatus is the result of evaluating a budget against its current window.
// Values keep full precision; JSON output rounds them to two places.
type BudgetStatus struct {
	BudgetID     string
	TenantID     string
	BudgetName   string
	Period       model.BudgetPeriod
	Window       model.Window
	BudgetAmount decimal.Decimal
	ThresholdPct int

	CurrentSpend   decimal.Decimal
	PercentageUsed decimal.Decimal
	DaysTotal      int
	DaysElapsed    int
	DaysRemaining  int
	DailyRate      decimal.Decimal
	ProjectedSpend decimal.Decimal

	IsOverThreshold  bool
	IsOverBudget     bool
	WillExceedBudget bool

	EvaluatedAt time.Time
}

type budgetStatusJSON struct {
	BudgetID         string             `json:"budget_id"`
	TenantID         string             `json:"tenant_id"`
	BudgetName       string             `json:"budget_name"`
	Period           model.BudgetPeriod `json:"period"`
	PeriodStart      time.Time          `json:"period_start"`
	PeriodEnd        time.Time          `json:"period_end"`
	BudgetAmount     float64            `json:"budget_amount"`
	ThresholdPct     int                `json:"threshold_percentage"`
	CurrentSpend     float64            `json:"current_spend"`
	PercentageUsed   float64            `json:"percentage_used"`
	RemainingAmount  float64            `json:"remaining_amount"`
	DaysTotal        int                `json:"days_in_period"`
	DaysElapsed      int                `json:"days_into_period"`
	DaysRemaining    int                `json:"days_remaining"`
	DailyRate        float64            `json:"daily_rate"`
	ProjectedSpend   float64            `json:"projected_spend"`
	IsOverThreshold  bool               `json:"is_over_threshold"`
	IsOverBudget     bool               `json:"is_over_budget"`
	WillExceedBudget bool               `json:"will_exceed_budget"`
	EvaluatedAt      time.Time          `json:"evaluated_at"`
}

// MarshalJSON renders the status with monetary and percentage values rounded to 2 places.
func (s *BudgetStatus) MarshalJSON() ([]byte, error) {
	remaining := s.BudgetAmount.Sub(s.CurrentSpend)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return json.Marshal(budgetStatusJSON{
		BudgetID:         s.BudgetID,
		TenantID:         s.TenantID,
		BudgetName:       s.BudgetName,
		Period:           s.Period,
		PeriodStart:      s.Window.Start,
		PeriodEnd:        s.Window.End,
		BudgetAmount:     round2(s.BudgetAmount),
		ThresholdPct:     s.ThresholdPct,
		CurrentSpend:     round2(s.CurrentSpend),
		PercentageUsed:   round2(s.PercentageUsed),
		RemainingAmount:  round2(remaining),
		DaysTotal:        s.DaysTotal,
		DaysElapsed:      s.DaysElapsed,
		DaysRemaining:    s.DaysRemaining,
		DailyRate:        round2(s.DailyRate),
		ProjectedSpend:   round2(s.ProjectedSpend),
		IsOverThreshold:  s.IsOverThreshold,
		IsOverBudget:     s.IsOverBudget,
		WillExceedBudget: s.WillExceedBudget,
		EvaluatedAt:      s.EvaluatedAt,
	})
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Evaluator computes a BudgetStatus from a budget's window and spend.
type Evaluator struct {
	spend *SpendAggregator
	now   func() time.Time
}

// NewEvaluator creates an evaluator. A nil clock uses time.Now.
func NewEvaluator(spend *SpendAggregator, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{spend: spend, now: now}
}

// Evaluate computes the budget's status for the window containing now.
// It has no side effects.
func (e *Evaluator) Evaluate(ctx context.Context, budget *model.Budget) (*BudgetStatus, error) {
	now := e.now().UTC()
	window, err := model.PeriodWindow(budget.Period, now)
	if err != nil {
		return nil, err
	}

	spend, err := e.spend.TotalSpend(ctx, budget.TenantID, window, budget.Filter())
	if err != nil {
		return nil, err
	}

	return computeStatus(budget, window, spend, now), nil
}

func computeStatus(budget *model.Budget, window model.Window, spend decimal.Decimal, now time.Time) *BudgetStatus {
	daysTotal := window.Days()
	daysElapsed := max(int(now.Sub(window.Start)/day), 1)
	daysRemaining := max(int(window.End.Sub(now)/day), 0)

	pct := decimal.Zero
	overBudget := spend.IsPositive()
	if budget.Amount.IsPositive() {
		pct = spend.Mul(hundred).Div(budget.Amount)
		overBudget = spend.GreaterThanOrEqual(budget.Amount)
	}

	elapsed := decimal.NewFromInt(int64(daysElapsed))
	dailyRate := spend.Div(elapsed)
	projected := spend.Mul(decimal.NewFromInt(int64(daysTotal))).Div(elapsed)

	return &BudgetStatus{
		BudgetID:         budget.ID,
		TenantID:         budget.TenantID,
		BudgetName:       budget.Name,
		Period:           budget.Period,
		Window:           window,
		BudgetAmount:     budget.Amount,
		ThresholdPct:     budget.ThresholdPct,
		CurrentSpend:     spend,
		PercentageUsed:   pct,
		DaysTotal:        daysTotal,
		DaysElapsed:      daysElapsed,
		DaysRemaining:    daysRemaining,
		DailyRate:        dailyRate,
		ProjectedSpend:   projected,
		IsOverThreshold:  pct.GreaterThanOrEqual(decimal.NewFromInt(int64(budget.ThresholdPct))),
		IsOverBudget:     overBudget,
		WillExceedBudget: projected.GreaterThan(budget.Amount),
		EvaluatedAt:      now,
	}
}
