package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// budgetFile is the YAML layout accepted by `cbg budget import`.
// Amounts are strings so they parse exactly.
type budgetFile struct {
	Budgets []budgetEntry `yaml:"budgets"`
}

type budgetEntry struct {
	ID                 string   `yaml:"id"`
	TenantID           string   `yaml:"tenant_id"`
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description"`
	AccountID          string   `yaml:"account_id"`
	ServiceName        string   `yaml:"service_name"`
	Region             string   `yaml:"region"`
	Amount             string   `yaml:"amount"`
	Period             string   `yaml:"period"`
	ThresholdPct       int      `yaml:"threshold_percentage"`
	Channels           []string `yaml:"notification_channels"`
	NotificationEmails []string `yaml:"notification_emails"`
	SlackWebhookURL    string   `yaml:"slack_webhook_url"`
	WebhookURL         string   `yaml:"custom_webhook_url"`
	Active             *bool    `yaml:"is_active"`
}

// costFile is the YAML layout accepted by `cbg cost import`.
type costFile struct {
	Costs []costEntry `yaml:"costs"`
}

type costEntry struct {
	TenantID  string            `yaml:"tenant_id"`
	AccountID string            `yaml:"account_id"`
	Date      string            `yaml:"date"`
	Service   string            `yaml:"service"`
	Region    string            `yaml:"region"`
	UsageType string            `yaml:"usage_type"`
	Tags      map[string]string `yaml:"tags"`
	Cost      string            `yaml:"cost"`
	Currency  string            `yaml:"currency"`
}

func (e budgetEntry) toBudget() (*model.Budget, error) {
	amount, err := decimal.NewFromString(e.Amount)
	if err != nil {
		return nil, fmt.Errorf("budget %q: invalid amount %q: %w", e.Name, e.Amount, err)
	}
	b := &model.Budget{
		ID:                 e.ID,
		TenantID:           e.TenantID,
		Name:               e.Name,
		Description:        e.Description,
		AccountID:          e.AccountID,
		ServiceName:        e.ServiceName,
		Region:             e.Region,
		Amount:             amount,
		Period:             model.BudgetPeriod(e.Period),
		ThresholdPct:       e.ThresholdPct,
		NotificationEmails: e.NotificationEmails,
		SlackWebhookURL:    e.SlackWebhookURL,
		WebhookURL:         e.WebhookURL,
		IsActive:           e.Active == nil || *e.Active,
	}
	for _, c := range e.Channels {
		b.Channels = append(b.Channels, model.Channel(c))
	}
	b.ApplyDefaults()
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("budget %q: %w", e.Name, err)
	}
	return b, nil
}

func (e costEntry) toRecord() (*model.CostRecord, error) {
	cost, err := decimal.NewFromString(e.Cost)
	if err != nil {
		return nil, fmt.Errorf("invalid cost %q: %w", e.Cost, err)
	}
	date, err := time.Parse(time.DateOnly, e.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", e.Date, err)
	}
	if e.TenantID == "" {
		return nil, fmt.Errorf("cost on %s: tenant_id is required", e.Date)
	}
	return &model.CostRecord{
		TenantID:  e.TenantID,
		AccountID: e.AccountID,
		Date:      date,
		Service:   e.Service,
		Region:    e.Region,
		UsageType: e.UsageType,
		Tags:      e.Tags,
		Cost:      cost,
		Currency:  e.Currency,
	}, nil
}

// loadBudgetFile parses and validates every budget in path. Nothing is
// returned unless all entries are valid.
func loadBudgetFile(path string) ([]*model.Budget, error) {
	var f budgetFile
	if err := readYAML(path, &f); err != nil {
		return nil, err
	}
	budgets := make([]*model.Budget, 0, len(f.Budgets))
	for i, e := range f.Budgets {
		b, err := e.toBudget()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		budgets = append(budgets, b)
	}
	return budgets, nil
}

// loadCostFile parses every cost record in path.
func loadCostFile(path string) ([]*model.CostRecord, error) {
	var f costFile
	if err := readYAML(path, &f); err != nil {
		return nil, err
	}
	records := make([]*model.CostRecord, 0, len(f.Costs))
	for i, e := range f.Costs {
		r, err := e.toRecord()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
