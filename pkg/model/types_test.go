package model_test

import (
	"testing"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validBudget() *model.Budget {
	return &model.Budget{
		TenantID:           "tenant-a",
		Name:               "prod",
		Amount:             decimal.NewFromInt(1000),
		Period:             model.PeriodMonthly,
		ThresholdPct:       80,
		Channels:           []model.Channel{model.ChannelEmail, model.ChannelSlack},
		NotificationEmails: []string{"ops@example.com"},
		SlackWebhookURL:    "https://hooks.slack.com/services/x",
		IsActive:           true,
	}
}

func TestBudget_ApplyDefaults(t *testing.T) {
	b := &model.Budget{TenantID: "t"}
	b.ApplyDefaults()
	assert.Equal(t, 80, b.ThresholdPct)
	assert.Equal(t, model.PeriodMonthly, b.Period)

	b = &model.Budget{ThresholdPct: 50, Period: model.PeriodDaily}
	b.ApplyDefaults()
	assert.Equal(t, 50, b.ThresholdPct)
	assert.Equal(t, model.PeriodDaily, b.Period)
}

func TestBudget_Validate(t *testing.T) {
	assert.NoError(t, validBudget().Validate())

	tests := []struct {
		name   string
		mutate func(b *model.Budget)
		want   error
	}{
		{"missing tenant", func(b *model.Budget) { b.TenantID = "" }, model.ErrInvalidBudget},
		{"negative amount", func(b *model.Budget) { b.Amount = decimal.NewFromInt(-1) }, model.ErrInvalidBudget},
		{"threshold zero", func(b *model.Budget) { b.ThresholdPct = 0 }, model.ErrInvalidBudget},
		{"threshold above 100", func(b *model.Budget) { b.ThresholdPct = 101 }, model.ErrInvalidBudget},
		{"bad period", func(b *model.Budget) { b.Period = "hourly" }, model.ErrInvalidPeriod},
		{"unknown channel", func(b *model.Budget) { b.Channels = append(b.Channels, "sms") }, model.ErrInvalidBudget},
		{"email without recipients", func(b *model.Budget) { b.NotificationEmails = nil }, model.ErrChannelNotConfigured},
		{"slack without url", func(b *model.Budget) { b.SlackWebhookURL = "" }, model.ErrChannelNotConfigured},
		{"webhook without url", func(b *model.Budget) { b.Channels = []model.Channel{model.ChannelWebhook} }, model.ErrChannelNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBudget()
			tt.mutate(b)
			assert.ErrorIs(t, b.Validate(), tt.want)
		})
	}
}

func TestBudget_Filter(t *testing.T) {
	b := validBudget()
	assert.Equal(t, model.SpendFilter{}, b.Filter())

	b.AccountID = "acct-1"
	b.ServiceName = "Amazon EC2"
	b.Region = "us-east-1"
	assert.Equal(t, model.SpendFilter{AccountID: "acct-1", Service: "Amazon EC2", Region: "us-east-1"}, b.Filter())
}

func TestBudget_Channels(t *testing.T) {
	b := validBudget()
	assert.True(t, b.HasChannel(model.ChannelEmail))
	assert.False(t, b.HasChannel(model.ChannelWebhook))
	assert.True(t, b.ChannelConfigured(model.ChannelSlack))
	assert.False(t, b.ChannelConfigured(model.ChannelWebhook))
	assert.False(t, model.Channel("pager").Known())
}
