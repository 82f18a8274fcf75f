package alerts

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/shopspring/decimal"
)

// Message is the rendered content of one alert, shared by every channel.
type Message struct {
	Severity Severity
	Subject  string
	Text     string
	HTML     string
}

// messageView holds pre-formatted values so templates stay logic-free.
type messageView struct {
	BudgetID     string
	Name         string
	Description  string
	Severity     string
	Title        string
	Current      string
	Amount       string
	Remaining    string
	Percentage   string
	Threshold    int
	Progress     int
	Color        string
	Period       model.BudgetPeriod
	PeriodStart  string
	PeriodEnd    string
	DashboardURL string
}

const textBody = `{{.Severity}}: {{.Title}}

Budget:      {{.Name}}
{{- if .Description}}
Description: {{.Description}}
{{- end}}
Period:      {{.Period}} ({{.PeriodStart}} to {{.PeriodEnd}})
Spent:       {{.Current}} of {{.Amount}} ({{.Percentage}}%)
Remaining:   {{.Remaining}}
Threshold:   {{.Threshold}}%
{{if .DashboardURL}}
View budget: {{.DashboardURL}}
{{end}}`

const htmlBody = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2 style="color: {{.Color}};">{{.Severity}}: {{.Title}}</h2>
  <p><strong>{{.Name}}</strong>{{if .Description}}<br>{{.Description}}{{end}}</p>
  <div style="background: #eee; border-radius: 4px; width: 100%; height: 20px;">
    <div style="background: {{.Color}}; border-radius: 4px; width: {{.Progress}}%; height: 20px;"></div>
  </div>
  <table style="margin-top: 12px;">
    <tr><td>Spent</td><td>{{.Current}} of {{.Amount}} ({{.Percentage}}%)</td></tr>
    <tr><td>Remaining</td><td>{{.Remaining}}</td></tr>
    <tr><td>Threshold</td><td>{{.Threshold}}%</td></tr>
    <tr><td>Period</td><td>{{.Period}} ({{.PeriodStart}} to {{.PeriodEnd}})</td></tr>
  </table>
  {{if .DashboardURL}}<p><a href="{{.DashboardURL}}">View budget</a></p>{{end}}
</body>
</html>
`

var (
	textTmpl = template.Must(template.New("text").Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody))
)

// RenderMessage builds the subject and bodies for an alert.
func RenderMessage(budget *model.Budget, alert *model.BudgetAlert, dashboardURL string) (*Message, error) {
	v := newMessageView(budget, alert, dashboardURL)

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, v); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTmpl.Execute(&html, v); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}

	return &Message{
		Severity: SeverityOf(alert),
		Subject:  fmt.Sprintf("%s: Budget Alert - %s", v.Severity, v.Name),
		Text:     text.String(),
		HTML:     html.String(),
	}, nil
}

func newMessageView(budget *model.Budget, alert *model.BudgetAlert, dashboardURL string) messageView {
	severity := SeverityOf(alert)
	remaining := alert.BudgetAmount.Sub(alert.CurrentAmount)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	title := "Budget threshold reached"
	if alert.AlertType == model.AlertBudgetExceeded {
		title = "Budget exceeded"
	}
	color := "#ff9900"
	if severity == SeverityCritical {
		color = "#cc0000"
	}

	name := budget.Name
	if name == "" {
		name = budget.ID
	}
	if dashboardURL != "" {
		dashboardURL = strings.TrimRight(dashboardURL, "/") + "/budgets/" + budget.ID
	}

	return messageView{
		BudgetID:     budget.ID,
		Name:         name,
		Description:  budget.Description,
		Severity:     strings.ToUpper(string(severity)),
		Title:        title,
		Current:      formatMoney(alert.CurrentAmount),
		Amount:       formatMoney(alert.BudgetAmount),
		Remaining:    formatMoney(remaining),
		Percentage:   alert.PercentageUsed.StringFixed(1),
		Threshold:    budget.ThresholdPct,
		Progress:     progress(alert.PercentageUsed),
		Color:        color,
		Period:       budget.Period,
		PeriodStart:  alert.PeriodStart.UTC().Format(time.DateOnly),
		PeriodEnd:    alert.PeriodEnd.UTC().Format(time.DateOnly),
		DashboardURL: dashboardURL,
	}
}

func formatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// progress clamps a percentage to a bar width in 0..100.
func progress(pct decimal.Decimal) int {
	switch {
	case pct.IsNegative():
		return 0
	case pct.GreaterThan(hundred):
		return 100
	default:
		return int(pct.IntPart())
	}
}
