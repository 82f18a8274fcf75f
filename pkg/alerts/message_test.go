package alerts_test

import (
	"testing"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		pct  int64
		want alerts.Severity
	}{
		{80, alerts.SeverityWarning},
		{99, alerts.SeverityWarning},
		{100, alerts.SeverityCritical},
		{150, alerts.SeverityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, alerts.SeverityOf(testAlert(tt.pct)), "pct %d", tt.pct)
	}

	a := testAlert(99)
	a.PercentageUsed = decimal.RequireFromString("99.999")
	assert.Equal(t, alerts.SeverityWarning, alerts.SeverityOf(a))
}

func TestRenderMessage_Warning(t *testing.T) {
	b := testBudget()
	b.Description = "Production account"

	msg, err := alerts.RenderMessage(b, testAlert(85), "http://dash.local/")
	require.NoError(t, err)

	assert.Equal(t, alerts.SeverityWarning, msg.Severity)
	assert.Equal(t, "WARNING: Budget Alert - prod", msg.Subject)
	assert.Contains(t, msg.Text, "Budget threshold reached")
	assert.Contains(t, msg.Text, "Description: Production account")
	assert.Contains(t, msg.Text, "$850.00 of $1000.00 (85.0%)")
	assert.Contains(t, msg.Text, "Remaining:   $150.00")
	assert.Contains(t, msg.Text, "Threshold:   80%")
	assert.Contains(t, msg.Text, "monthly (2024-03-01 to 2024-04-01)")
	assert.Contains(t, msg.Text, "http://dash.local/budgets/budget-1")

	assert.Contains(t, msg.HTML, "width: 85%")
	assert.Contains(t, msg.HTML, `href="http://dash.local/budgets/budget-1"`)
}

func TestRenderMessage_Exceeded(t *testing.T) {
	msg, err := alerts.RenderMessage(testBudget(), testAlert(130), "")
	require.NoError(t, err)

	assert.Equal(t, alerts.SeverityCritical, msg.Severity)
	assert.Equal(t, "CRITICAL: Budget Alert - prod", msg.Subject)
	assert.Contains(t, msg.Text, "Budget exceeded")
	assert.Contains(t, msg.Text, "Remaining:   $0.00")
	assert.NotContains(t, msg.Text, "View budget")
	assert.Contains(t, msg.HTML, "width: 100%")
}

func TestRenderMessage_EscapesHTML(t *testing.T) {
	b := testBudget()
	b.Name = "<script>alert(1)</script>"

	msg, err := alerts.RenderMessage(b, testAlert(90), "")
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestRenderMessage_FallsBackToID(t *testing.T) {
	b := testBudget()
	b.Name = ""
	b.Period = model.PeriodQuarterly

	msg, err := alerts.RenderMessage(b, testAlert(90), "")
	require.NoError(t, err)
	assert.Equal(t, "WARNING: Budget Alert - budget-1", msg.Subject)
	assert.Contains(t, msg.Text, "quarterly")
}
