package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
)

// SlackChannel posts alerts to a budget's Slack incoming webhook.
type SlackChannel struct {
	pool         *EndpointPool
	dashboardURL string
}

// NewSlackChannel creates a Slack webhook channel.
func NewSlackChannel(pool *EndpointPool, dashboardURL string) *SlackChannel {
	return &SlackChannel{pool: pool, dashboardURL: dashboardURL}
}

func (s *SlackChannel) Kind() model.Channel { return model.ChannelSlack }

func (s *SlackChannel) Deliver(ctx context.Context, budget *model.Budget, alert *model.BudgetAlert) error {
	v := newMessageView(budget, alert, s.dashboardURL)

	color := "warning"
	if SeverityOf(alert) == SeverityCritical {
		color = "danger"
	}

	payload := slackPayload{
		Text: fmt.Sprintf("%s: %s - %s", v.Severity, v.Title, v.Name),
		Attachments: []slackAttachment{
			{
				Color:     color,
				Title:     fmt.Sprintf("Budget Alert: %s", v.Name),
				TitleLink: v.DashboardURL,
				Fields: []slackField{
					{Title: "Current Spend", Value: v.Current, Short: true},
					{Title: "Budget", Value: v.Amount, Short: true},
					{Title: "Usage", Value: v.Percentage + "%", Short: true},
					{Title: "Threshold", Value: fmt.Sprintf("%d%%", v.Threshold), Short: true},
					{Title: "Period", Value: fmt.Sprintf("%s (%s to %s)", v.Period, v.PeriodStart, v.PeriodEnd), Short: false},
				},
				Footer: "Cloud Budget Guardian",
				Ts:     time.Now().Unix(),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := s.pool.PostJSON(ctx, budget.SlackWebhookURL, body, nil); err != nil {
		return fmt.Errorf("send slack alert: %w", err)
	}
	return nil
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	TitleLink string       `json:"title_link,omitempty"`
	Fields    []slackField `json:"fields"`
	Footer    string       `json:"footer"`
	Ts        int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}
