package alerts_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannel struct {
	kind  model.Channel
	err   error
	panic bool
	block bool
	calls atomic.Int32
}

func (s *stubChannel) Kind() model.Channel { return s.kind }

func (s *stubChannel) Deliver(ctx context.Context, _ *model.Budget, _ *model.BudgetAlert) error {
	s.calls.Add(1)
	if s.panic {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

type recordedDelivery struct {
	channel, outcome string
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recordedDelivery
}

func (f *fakeRecorder) RecordDelivery(channel, outcome string, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedDelivery{channel, outcome})
}

func TestDispatcher_AllChannelsSucceed(t *testing.T) {
	email := &stubChannel{kind: model.ChannelEmail}
	slack := &stubChannel{kind: model.ChannelSlack}
	hook := &stubChannel{kind: model.ChannelWebhook}
	d := alerts.NewDispatcher([]alerts.Channel{email, slack, hook}, time.Second, discardLogger())

	report := d.Dispatch(context.Background(), testBudget(), testAlert(85))
	assert.Equal(t, []model.Channel{model.ChannelEmail, model.ChannelSlack, model.ChannelWebhook}, report.Succeeded())
	assert.Equal(t, int32(1), email.calls.Load())
	assert.Equal(t, int32(1), slack.calls.Load())
	assert.Equal(t, int32(1), hook.calls.Load())
}

func TestDispatcher_ChannelIsolation(t *testing.T) {
	email := &stubChannel{kind: model.ChannelEmail}
	slack := &stubChannel{kind: model.ChannelSlack, err: errors.New("status 500")}
	hook := &stubChannel{kind: model.ChannelWebhook, panic: true}
	d := alerts.NewDispatcher([]alerts.Channel{email, slack, hook}, time.Second, discardLogger())

	report := d.Dispatch(context.Background(), testBudget(), testAlert(85))
	assert.Equal(t, []model.Channel{model.ChannelEmail}, report.Succeeded())

	res, ok := report.Result(model.ChannelSlack)
	require.True(t, ok)
	assert.Equal(t, alerts.OutcomeFailed, res.Outcome)
	assert.EqualError(t, res.Err, "status 500")

	res, ok = report.Result(model.ChannelWebhook)
	require.True(t, ok)
	assert.Equal(t, alerts.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Err.Error(), "panicked")
}

func TestDispatcher_SkipsUnconfiguredAndUnavailable(t *testing.T) {
	email := &stubChannel{kind: model.ChannelEmail}
	slack := &stubChannel{kind: model.ChannelSlack}
	// No webhook transport registered.
	d := alerts.NewDispatcher([]alerts.Channel{email, slack}, time.Second, discardLogger())

	b := testBudget()
	b.SlackWebhookURL = ""

	report := d.Dispatch(context.Background(), b, testAlert(85))
	assert.Equal(t, []model.Channel{model.ChannelEmail}, report.Succeeded())
	assert.Equal(t, int32(0), slack.calls.Load())

	res, _ := report.Result(model.ChannelSlack)
	assert.Equal(t, alerts.OutcomeSkipped, res.Outcome)
	assert.ErrorIs(t, res.Err, model.ErrChannelNotConfigured)

	res, _ = report.Result(model.ChannelWebhook)
	assert.Equal(t, alerts.OutcomeSkipped, res.Outcome)
	assert.ErrorIs(t, res.Err, alerts.ErrChannelUnavailable)
}

func TestDispatcher_OnlyListedChannels(t *testing.T) {
	email := &stubChannel{kind: model.ChannelEmail}
	slack := &stubChannel{kind: model.ChannelSlack}
	d := alerts.NewDispatcher([]alerts.Channel{email, slack}, time.Second, discardLogger())

	b := testBudget()
	b.Channels = []model.Channel{model.ChannelSlack, model.ChannelSlack}

	report := d.Dispatch(context.Background(), b, testAlert(85))
	require.Len(t, report.Results, 1)
	assert.Equal(t, []model.Channel{model.ChannelSlack}, report.Succeeded())
	assert.Equal(t, int32(0), email.calls.Load())
	assert.Equal(t, int32(1), slack.calls.Load())
}

func TestDispatcher_TimeoutBoundsSlowChannel(t *testing.T) {
	email := &stubChannel{kind: model.ChannelEmail}
	slack := &stubChannel{kind: model.ChannelSlack, block: true}
	d := alerts.NewDispatcher([]alerts.Channel{email, slack}, 50*time.Millisecond, discardLogger())

	b := testBudget()
	b.Channels = []model.Channel{model.ChannelEmail, model.ChannelSlack}

	start := time.Now()
	report := d.Dispatch(context.Background(), b, testAlert(85))
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, []model.Channel{model.ChannelEmail}, report.Succeeded())
	res, _ := report.Result(model.ChannelSlack)
	assert.Equal(t, alerts.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestDispatcher_RecordsOutcomes(t *testing.T) {
	rec := &fakeRecorder{}
	email := &stubChannel{kind: model.ChannelEmail}
	slack := &stubChannel{kind: model.ChannelSlack, err: errors.New("down")}
	d := alerts.NewDispatcher([]alerts.Channel{email, slack}, time.Second, discardLogger(), alerts.WithDeliveryRecorder(rec))

	d.Dispatch(context.Background(), testBudget(), testAlert(85))

	assert.ElementsMatch(t, []recordedDelivery{
		{"email", "succeeded"},
		{"slack", "failed"},
		{"webhook", "skipped"},
	}, rec.seen)
}

func TestDispatcher_Available(t *testing.T) {
	d := alerts.NewDispatcher([]alerts.Channel{&stubChannel{kind: model.ChannelSlack}}, 0, discardLogger())
	assert.True(t, d.Available(model.ChannelSlack))
	assert.False(t, d.Available(model.ChannelEmail))
}
