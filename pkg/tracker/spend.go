package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/storage"
	"github.com/shopspring/decimal"
)

// SpendAggregator sums cost records into a budget window. Every call hits the
// store; nothing is cached.
type SpendAggregator struct {
	costs   storage.CostStore
	timeout time.Duration
}

// NewSpendAggregator creates an aggregator. timeout bounds each query; zero disables the bound.
func NewSpendAggregator(costs storage.CostStore, timeout time.Duration) *SpendAggregator {
	return &SpendAggregator{costs: costs, timeout: timeout}
}

// TotalSpend returns the tenant's spend in window under filter. No matching
// records is zero, not an error. Net credits are reported as zero.
func (a *SpendAggregator) TotalSpend(ctx context.Context, tenantID string, window model.Window, filter model.SpendFilter) (decimal.Decimal, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	total, err := a.costs.SumCost(ctx, tenantID, window, filter)
	if err != nil {
		return decimal.Zero, fmt.Errorf("aggregate spend for tenant %q in %s: %w", tenantID, window, err)
	}
	if total.IsNegative() {
		return decimal.Zero, nil
	}
	return total, nil
}
