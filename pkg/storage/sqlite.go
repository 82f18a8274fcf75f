package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

// tsLayout is fixed width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite implements Storage using an SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ Storage = (*SQLite)(nil)

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; serialising in the pool avoids SQLITE_BUSY within a process.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) RecordCost(ctx context.Context, record *model.CostRecord) error {
	if record.TenantID == "" {
		return errors.New("record cost: tenant id is required")
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Date.IsZero() {
		record.Date = time.Now().UTC()
	}
	if record.Currency == "" {
		record.Currency = "USD"
	}
	tags, err := json.Marshal(record.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	if record.Tags == nil {
		tags = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cost_records (id, tenant_id, account_id, date, service, region, usage_type, tags, cost, currency)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.TenantID, record.AccountID, record.Date.UTC().Format(time.DateOnly),
		record.Service, record.Region, record.UsageType, string(tags),
		record.Cost.String(), record.Currency,
	)
	if err != nil {
		return fmt.Errorf("insert cost record: %w", err)
	}
	return nil
}

func (s *SQLite) SumCost(ctx context.Context, tenantID string, window model.Window, filter model.SpendFilter) (decimal.Decimal, error) {
	where, args := buildCostWhere(tenantID, window, filter)
	rows, err := s.db.QueryContext(ctx, "SELECT cost FROM cost_records WHERE "+where, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum cost: %w", err)
	}
	defer rows.Close()

	// Summed in Go: SQLite's SUM over TEXT would go through float64.
	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("scan cost: %w", err)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse cost %q: %w", raw, err)
		}
		total = total.Add(v)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("sum cost: %w", err)
	}
	return total, nil
}

func (s *SQLite) QueryCosts(ctx context.Context, q CostQuery) ([]model.CostRecord, error) {
	where, args := buildCostWhere(q.TenantID, q.Window, q.Filter)
	query := `SELECT id, tenant_id, account_id, date, service, region, usage_type, tags, cost, currency
		FROM cost_records WHERE ` + where + " ORDER BY date DESC, created_at DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query costs: %w", err)
	}
	defer rows.Close()

	var records []model.CostRecord
	for rows.Next() {
		var (
			r                   model.CostRecord
			date, tags, costRaw string
		)
		if err := rows.Scan(&r.ID, &r.TenantID, &r.AccountID, &date, &r.Service, &r.Region,
			&r.UsageType, &tags, &costRaw, &r.Currency); err != nil {
			return nil, fmt.Errorf("scan cost row: %w", err)
		}
		if r.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("parse cost date %q: %w", date, err)
		}
		if r.Cost, err = decimal.NewFromString(costRaw); err != nil {
			return nil, fmt.Errorf("parse cost %q: %w", costRaw, err)
		}
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

const budgetColumns = `id, tenant_id, account_id, service_name, region, name, description, amount, period,
	threshold_pct, channels, notification_emails, slack_webhook_url, webhook_url, is_active,
	last_alert_sent_at, created_at, updated_at`

func (s *SQLite) PutBudget(ctx context.Context, budget *model.Budget) error {
	if budget.ID == "" {
		budget.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if budget.CreatedAt.IsZero() {
		budget.CreatedAt = now
	}
	budget.UpdatedAt = now

	channels, err := json.Marshal(nonNil(budget.Channels))
	if err != nil {
		return fmt.Errorf("encode channels: %w", err)
	}
	emails, err := json.Marshal(nonNil(budget.NotificationEmails))
	if err != nil {
		return fmt.Errorf("encode emails: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO budgets (`+budgetColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   tenant_id = excluded.tenant_id,
		   account_id = excluded.account_id,
		   service_name = excluded.service_name,
		   region = excluded.region,
		   name = excluded.name,
		   description = excluded.description,
		   amount = excluded.amount,
		   period = excluded.period,
		   threshold_pct = excluded.threshold_pct,
		   channels = excluded.channels,
		   notification_emails = excluded.notification_emails,
		   slack_webhook_url = excluded.slack_webhook_url,
		   webhook_url = excluded.webhook_url,
		   is_active = excluded.is_active,
		   updated_at = excluded.updated_at`,
		budget.ID, budget.TenantID, budget.AccountID, budget.ServiceName, budget.Region,
		budget.Name, budget.Description, budget.Amount.String(), string(budget.Period),
		budget.ThresholdPct, string(channels), string(emails), budget.SlackWebhookURL,
		budget.WebhookURL, budget.IsActive, formatTimePtr(budget.LastAlertSentAt),
		budget.CreatedAt.UTC().Format(tsLayout), budget.UpdatedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("put budget: %w", err)
	}
	return nil
}

func (s *SQLite) GetBudget(ctx context.Context, id string) (*model.Budget, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("budget %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func (s *SQLite) ListBudgets(ctx context.Context, tenantID string) ([]model.Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets`
	var args []any
	if tenantID != "" {
		query += " WHERE tenant_id = ?"
		args = append(args, tenantID)
	}
	return s.listBudgets(ctx, query+" ORDER BY tenant_id, name, id", args...)
}

func (s *SQLite) ListActiveBudgets(ctx context.Context, tenantID string) ([]model.Budget, error) {
	return s.listBudgets(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE tenant_id = ? AND is_active = 1 ORDER BY name, id`,
		tenantID)
}

func (s *SQLite) listBudgets(ctx context.Context, query string, args ...any) ([]model.Budget, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []model.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget row: %w", err)
		}
		budgets = append(budgets, *b)
	}
	return budgets, rows.Err()
}

func (s *SQLite) MarkAlertSent(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE budgets SET last_alert_sent_at = ? WHERE id = ?`,
		at.UTC().Format(tsLayout), id,
	)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("budget %q: %w", id, ErrNotFound)
	}
	return nil
}

const alertColumns = `id, budget_id, alert_type, current_amount, budget_amount, percentage_used,
	period_start, period_end, notification_sent, notification_sent_at, channels_used, created_at`

// InsertAlert relies on the UNIQUE(budget_id, period_start, period_end) constraint,
// so concurrent callers in any process race on a single atomic statement.
func (s *SQLite) InsertAlert(ctx context.Context, alert *model.BudgetAlert) (bool, error) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	channels, err := json.Marshal(nonNil(alert.ChannelsUsed))
	if err != nil {
		return false, fmt.Errorf("encode channels: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO budget_alerts (`+alertColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(budget_id, period_start, period_end) DO NOTHING`,
		alert.ID, alert.BudgetID, string(alert.AlertType),
		alert.CurrentAmount.String(), alert.BudgetAmount.String(), alert.PercentageUsed.String(),
		formatBound(alert.PeriodStart), formatBound(alert.PeriodEnd),
		alert.NotificationSent, formatTimePtr(alert.NotificationSentAt), string(channels),
		alert.CreatedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLite) UpdateAlertDelivery(ctx context.Context, id string, sent bool, sentAt *time.Time, channels []model.Channel) error {
	encoded, err := json.Marshal(nonNil(channels))
	if err != nil {
		return fmt.Errorf("encode channels: %w", err)
	}
	// A delivered alert is never rewritten.
	result, err := s.db.ExecContext(ctx,
		`UPDATE budget_alerts
		 SET notification_sent = ?, notification_sent_at = ?, channels_used = ?
		 WHERE id = ? AND notification_sent = 0`,
		sent, formatTimePtr(sentAt), string(encoded), id,
	)
	if err != nil {
		return fmt.Errorf("update alert delivery: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("undelivered alert %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) GetAlertForPeriod(ctx context.Context, budgetID string, window model.Window) (*model.BudgetAlert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM budget_alerts
		 WHERE budget_id = ? AND period_start = ? AND period_end = ?`,
		budgetID, formatBound(window.Start), formatBound(window.End),
	)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert for budget %q in %s: %w", budgetID, window, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (s *SQLite) ListAlerts(ctx context.Context, budgetID string, limit int) ([]model.BudgetAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM budget_alerts WHERE budget_id = ? ORDER BY created_at DESC, period_start DESC`
	args := []any{budgetID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.BudgetAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBudget(sc scanner) (*model.Budget, error) {
	var (
		b                    model.Budget
		amount, period       string
		channels, emails     string
		lastAlert            sql.NullString
		createdAt, updatedAt string
	)
	if err := sc.Scan(&b.ID, &b.TenantID, &b.AccountID, &b.ServiceName, &b.Region, &b.Name,
		&b.Description, &amount, &period, &b.ThresholdPct, &channels, &emails,
		&b.SlackWebhookURL, &b.WebhookURL, &b.IsActive, &lastAlert, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	b.Period = model.BudgetPeriod(period)
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if err := json.Unmarshal([]byte(channels), &b.Channels); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	if err := json.Unmarshal([]byte(emails), &b.NotificationEmails); err != nil {
		return nil, fmt.Errorf("decode emails: %w", err)
	}
	if b.LastAlertSentAt, err = parseTimePtr(lastAlert); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = time.Parse(tsLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if b.UpdatedAt, err = time.Parse(tsLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &b, nil
}

func scanAlert(sc scanner) (*model.BudgetAlert, error) {
	var (
		a                      model.BudgetAlert
		alertType              string
		current, amount, pct   string
		periodStart, periodEnd string
		sentAt                 sql.NullString
		channels, createdAt    string
	)
	if err := sc.Scan(&a.ID, &a.BudgetID, &alertType, &current, &amount, &pct,
		&periodStart, &periodEnd, &a.NotificationSent, &sentAt, &channels, &createdAt); err != nil {
		return nil, err
	}

	var err error
	a.AlertType = model.AlertType(alertType)
	if a.CurrentAmount, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("parse current_amount: %w", err)
	}
	if a.BudgetAmount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse budget_amount: %w", err)
	}
	if a.PercentageUsed, err = decimal.NewFromString(pct); err != nil {
		return nil, fmt.Errorf("parse percentage_used: %w", err)
	}
	if a.PeriodStart, err = time.Parse(time.RFC3339, periodStart); err != nil {
		return nil, fmt.Errorf("parse period_start: %w", err)
	}
	if a.PeriodEnd, err = time.Parse(time.RFC3339, periodEnd); err != nil {
		return nil, fmt.Errorf("parse period_end: %w", err)
	}
	if a.NotificationSentAt, err = parseTimePtr(sentAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(channels), &a.ChannelsUsed); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	if a.CreatedAt, err = time.Parse(tsLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &a, nil
}

// buildCostWhere constructs the WHERE clause shared by cost sums and listings.
func buildCostWhere(tenantID string, window model.Window, filter model.SpendFilter) (string, []any) {
	conditions := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if !window.Start.IsZero() {
		conditions = append(conditions, "date >= ?")
		args = append(args, window.Start.UTC().Format(time.DateOnly))
	}
	if !window.End.IsZero() {
		conditions = append(conditions, "date < ?")
		args = append(args, window.End.UTC().Format(time.DateOnly))
	}
	if filter.AccountID != "" {
		conditions = append(conditions, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.Service != "" {
		conditions = append(conditions, "service = ?")
		args = append(args, filter.Service)
	}
	if filter.Region != "" {
		conditions = append(conditions, "region = ?")
		args = append(args, filter.Region)
	}

	return strings.Join(conditions, " AND "), args
}

// formatBound gives window bounds one canonical text form so the unique key compares exactly.
func formatBound(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(tsLayout)
}

func parseTimePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(tsLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", v.String, err)
	}
	return &t, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
