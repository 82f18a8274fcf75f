package tracker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/storage"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/tracker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMailer counts submitted mail and can be told to fail.
type fakeMailer struct {
	mu   sync.Mutex
	sent []*alerts.Mail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, m *alerts.Mail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	mgr      *tracker.BudgetManager
	store    *storage.SQLite
	clock    *clock
	mailer   *fakeMailer
	slack    *httptest.Server
	slackHit atomic.Int32
}

// newHarness wires a manager over a temp database, a fake mailer and an
// httptest Slack endpoint answering slackStatus.
func newHarness(t *testing.T, slackStatus int) *harness {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:  store,
		clock:  &clock{now: time.Date(2024, 4, 21, 0, 0, 0, 0, time.UTC)},
		mailer: &fakeMailer{},
	}
	h.slack = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h.slackHit.Add(1)
		w.WriteHeader(slackStatus)
	}))
	t.Cleanup(h.slack.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := alerts.NewEndpointPool(h.slack.Client(), alerts.BreakerSettings{})
	dispatcher := alerts.NewDispatcher([]alerts.Channel{
		alerts.NewEmailChannel(h.mailer, "noreply@example.com", "http://localhost:3000"),
		alerts.NewSlackChannel(pool, "http://localhost:3000"),
	}, time.Second, logger)

	h.mgr = tracker.NewBudgetManager(store, dispatcher, logger,
		tracker.WithClock(h.clock.Now),
		tracker.WithMaxConcurrency(3),
	)
	return h
}

func (h *harness) putBudget(t *testing.T, b *model.Budget) *model.Budget {
	t.Helper()
	if b.TenantID == "" {
		b.TenantID = "tenant-a"
	}
	if b.Period == "" {
		b.Period = model.PeriodMonthly
	}
	if b.ThresholdPct == 0 {
		b.ThresholdPct = 80
	}
	if b.Channels == nil {
		b.Channels = []model.Channel{model.ChannelEmail, model.ChannelSlack}
		b.NotificationEmails = []string{"ops@example.com"}
		b.SlackWebhookURL = h.slack.URL
	}
	b.IsActive = true
	require.NoError(t, h.store.PutBudget(context.Background(), b))
	return b
}

func (h *harness) addCost(t *testing.T, tenant, date, amount string) {
	t.Helper()
	d, err := time.Parse(time.DateOnly, date)
	require.NoError(t, err)
	require.NoError(t, h.store.RecordCost(context.Background(), &model.CostRecord{
		TenantID: tenant,
		Date:     d,
		Service:  "Amazon EC2",
		Cost:     decimal.RequireFromString(amount),
	}))
}

func TestBudgetManager_Evaluate(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	b := h.putBudget(t, &model.Budget{Name: "prod", Amount: decimal.NewFromInt(1000)})
	h.addCost(t, "tenant-a", "2024-04-02", "600")
	h.addCost(t, "tenant-a", "2024-04-20", "250")
	h.addCost(t, "tenant-a", "2024-03-31", "999") // previous period
	h.addCost(t, "tenant-b", "2024-04-05", "999") // other tenant

	status, err := h.mgr.Evaluate(context.Background(), b.ID)
	require.NoError(t, err)

	assert.Equal(t, "850", status.CurrentSpend.String())
	assert.Equal(t, "85.00", status.PercentageUsed.StringFixed(2))
	assert.True(t, status.IsOverThreshold)
	assert.False(t, status.IsOverBudget)
	assert.Equal(t, 20, status.DaysElapsed)

	// Evaluate has no side effects.
	alertsList, err := h.mgr.ListAlerts(context.Background(), b.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, alertsList)
	assert.Zero(t, h.mailer.count())
}

func TestBudgetManager_CheckAndAlert_IssuesOncePerPeriod(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	ctx := context.Background()
	b := h.putBudget(t, &model.Budget{Name: "prod", Amount: decimal.NewFromInt(1000)})
	h.addCost(t, "tenant-a", "2024-04-10", "850")

	alert, err := h.mgr.CheckAndAlert(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, model.AlertThresholdExceeded, alert.AlertType)
	assert.Equal(t, b.ID, alert.BudgetID)
	assert.True(t, alert.NotificationSent)
	require.NotNil(t, alert.NotificationSentAt)
	assert.ElementsMatch(t, []model.Channel{model.ChannelEmail, model.ChannelSlack}, alert.ChannelsUsed)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), alert.PeriodStart)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), alert.PeriodEnd)

	// More spend later in the same period does not produce a second alert.
	h.addCost(t, "tenant-a", "2024-04-21", "300")
	h.clock.Set(time.Date(2024, 4, 22, 9, 0, 0, 0, time.UTC))
	again, err := h.mgr.CheckAndAlert(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, again)

	assert.Equal(t, 1, h.mailer.count())
	assert.Equal(t, int32(1), h.slackHit.Load())

	history, err := h.mgr.ListAlerts(ctx, b.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, alert.ID, history[0].ID)
	require.NotNil(t, history[0].NotificationSentAt)
	assert.True(t, alert.NotificationSentAt.Equal(*history[0].NotificationSentAt))

	got, err := h.store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastAlertSentAt)
	assert.True(t, got.LastAlertSentAt.Equal(*alert.NotificationSentAt))
}

func TestBudgetManager_CheckAndAlert_NewPeriodAllowsNewAlert(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	ctx := context.Background()
	b := h.putBudget(t, &model.Budget{Name: "prod", Amount: decimal.NewFromInt(100)})
	h.addCost(t, "tenant-a", "2024-04-10", "90")
	h.addCost(t, "tenant-a", "2024-05-02", "95")

	first, err := h.mgr.CheckAndAlert(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	h.clock.Set(time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC))
	second, err := h.mgr.CheckAndAlert(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), second.PeriodStart)

	history, err := h.mgr.ListAlerts(ctx, b.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
}

func TestBudgetManager_CheckAndAlert_BudgetExceeded(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	b := h.putBudget(t, &model.Budget{Name: "dev", Amount: decimal.NewFromInt(100)})
	h.addCost(t, "tenant-a", "2024-04-03", "100")

	alert, err := h.mgr.CheckAndAlert(context.Background(), b.ID)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, model.AlertBudgetExceeded, alert.AlertType)
	assert.Equal(t, "100", alert.PercentageUsed.String())
}

func TestBudgetManager_CheckAndAlert_UnderThreshold(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	b := h.putBudget(t, &model.Budget{Name: "prod", Amount: decimal.NewFromInt(1000)})
	h.addCost(t, "tenant-a", "2024-04-10", "799.99")

	alert, err := h.mgr.CheckAndAlert(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Zero(t, h.mailer.count())
}

func TestBudgetManager_CheckAndAlert_Concurrent(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	b := h.putBudget(t, &model.Budget{Name: "prod", Amount: decimal.NewFromInt(1000)})
	h.addCost(t, "tenant-a", "2024-04-10", "900")

	const callers = 12
	var (
		wg     sync.WaitGroup
		issued atomic.Int32
		failed atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alert, err := h.mgr.CheckAndAlert(context.Background(), b.ID)
			if err != nil {
				failed.Add(1)
				return
			}
			if alert != nil {
				issued.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failed.Load())
	assert.Equal(t, int32(1), issued.Load())
	assert.Equal(t, 1, h.mailer.count())
	assert.Equal(t, int32(1), h.slackHit.Load())

	history, err := h.mgr.ListAlerts(context.Background(), b.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestBudgetManager_CheckAndAlert_ChannelIsolation(t *testing.T) {
	h := newHarness(t, http.StatusInternalServerError)
	b := h.putBudget(t, &model.Budget{Name: "prod", Amount: decimal.NewFromInt(1000)})
	h.addCost(t, "tenant-a", "2024-04-10", "850")

	alert, err := h.mgr.CheckAndAlert(context.Background(), b.ID)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.True(t, alert.NotificationSent)
	assert.Equal(t, []model.Channel{model.ChannelEmail}, alert.ChannelsUsed)
	assert.Equal(t, int32(1), h.slackHit.Load())
	assert.Equal(t, 1, h.mailer.count())

	stored, err := h.store.GetAlertForPeriod(context.Background(), b.ID, alert.Window())
	require.NoError(t, err)
	assert.Equal(t, []model.Channel{model.ChannelEmail}, stored.ChannelsUsed)
}

func TestBudgetManager_CheckAndAlert_AllChannelsFailKeepsPeriodSuppressed(t *testing.T) {
	h := newHarness(t, http.StatusBadGateway)
	h.mailer.err = errors.New("smtp: 421 service not available")
	ctx := context.Background()
	b := h.putBudget(t, &model.Budget{Name: "prod", Amount: decimal.NewFromInt(1000)})
	h.addCost(t, "tenant-a", "2024-04-10", "850")

	alert, err := h.mgr.CheckAndAlert(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.False(t, alert.NotificationSent)
	assert.Nil(t, alert.NotificationSentAt)
	assert.Empty(t, alert.ChannelsUsed)

	again, err := h.mgr.CheckAndAlert(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, again)

	stored, err := h.store.GetAlertForPeriod(ctx, b.ID, alert.Window())
	require.NoError(t, err)
	assert.False(t, stored.NotificationSent)

	got, err := h.store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastAlertSentAt)
}

func TestBudgetManager_Errors(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	ctx := context.Background()

	_, err := h.mgr.Evaluate(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = h.mgr.CheckAndAlert(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = h.mgr.ListAlerts(ctx, "missing", 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	inactive := h.putBudget(t, &model.Budget{Name: "old", Amount: decimal.NewFromInt(10)})
	inactive.IsActive = false
	require.NoError(t, h.store.PutBudget(ctx, inactive))
	_, err = h.mgr.Evaluate(ctx, inactive.ID)
	assert.ErrorIs(t, err, tracker.ErrBudgetInactive)
	_, err = h.mgr.CheckAndAlert(ctx, inactive.ID)
	assert.ErrorIs(t, err, tracker.ErrBudgetInactive)

	// Listed channel without its configuration.
	misconfigured := h.putBudget(t, &model.Budget{
		Name:     "no-hook",
		Amount:   decimal.NewFromInt(10),
		Channels: []model.Channel{model.ChannelWebhook},
	})
	h.addCost(t, "tenant-a", "2024-04-10", "50")
	alert, err := h.mgr.CheckAndAlert(ctx, misconfigured.ID)
	assert.ErrorIs(t, err, model.ErrChannelNotConfigured)
	assert.Nil(t, alert)
}

func TestBudgetManager_CheckAllAndAlert(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	ctx := context.Background()

	over := h.putBudget(t, &model.Budget{Name: "a-over", Amount: decimal.NewFromInt(100), ServiceName: "Amazon EC2"})
	under := h.putBudget(t, &model.Budget{Name: "b-under", Amount: decimal.NewFromInt(10000)})
	broken := h.putBudget(t, &model.Budget{
		Name:     "c-broken",
		Amount:   decimal.NewFromInt(100),
		Channels: []model.Channel{model.ChannelSlack},
	})
	inactive := h.putBudget(t, &model.Budget{Name: "d-inactive", Amount: decimal.NewFromInt(1)})
	inactive.IsActive = false
	require.NoError(t, h.store.PutBudget(ctx, inactive))
	h.putBudget(t, &model.Budget{TenantID: "tenant-b", Name: "other", Amount: decimal.NewFromInt(1)})

	h.addCost(t, "tenant-a", "2024-04-10", "95")

	result, err := h.mgr.CheckAllAndAlert(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", result.TenantID)

	require.Len(t, result.Statuses, 2)
	assert.Equal(t, over.ID, result.Statuses[0].BudgetID)
	assert.Equal(t, under.ID, result.Statuses[1].BudgetID)

	require.Len(t, result.Alerts, 1)
	assert.Equal(t, over.ID, result.Alerts[0].BudgetID)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, broken.ID, result.Failures[0].BudgetID)
	assert.ErrorIs(t, result.Failures[0].Err, model.ErrChannelNotConfigured)

	// A second sweep finds nothing new to send.
	result, err = h.mgr.CheckAllAndAlert(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Empty(t, result.Alerts)
	assert.Len(t, result.Statuses, 2)
	assert.Equal(t, 1, h.mailer.count())
}

func TestBudgetManager_CheckAllAndAlert_NoBudgets(t *testing.T) {
	h := newHarness(t, http.StatusOK)
	result, err := h.mgr.CheckAllAndAlert(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, result.Statuses)
	assert.Empty(t, result.Statuses)
	assert.Empty(t, result.Alerts)
	assert.Empty(t, result.Failures)
}
