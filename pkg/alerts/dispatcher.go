package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
)

// Outcome is the result of one channel attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped" // not attempted
)

// Result is the per-channel outcome of a dispatch.
type Result struct {
	Channel model.Channel `json:"channel"`
	Outcome Outcome       `json:"outcome"`
	Err     error         `json:"-"`
}

// Report aggregates the results of one dispatch in budget channel order.
type Report struct {
	Results []Result
}

// Succeeded returns the channels that delivered.
func (r Report) Succeeded() []model.Channel {
	var out []model.Channel
	for _, res := range r.Results {
		if res.Outcome == OutcomeSucceeded {
			out = append(out, res.Channel)
		}
	}
	return out
}

// Result returns the outcome recorded for c.
func (r Report) Result(c model.Channel) (Result, bool) {
	for _, res := range r.Results {
		if res.Channel == c {
			return res, true
		}
	}
	return Result{}, false
}

// Dispatcher fans an alert out to the budget's channels. Each attempt runs in
// its own goroutine under its own timeout; a failure or panic in one channel
// does not affect the others.
type Dispatcher struct {
	channels map[model.Channel]Channel
	timeout  time.Duration
	recorder DeliveryRecorder
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDeliveryRecorder reports every channel outcome to r.
func WithDeliveryRecorder(r DeliveryRecorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher creates a dispatcher over the given transports. A later
// transport of the same kind replaces an earlier one. timeout <= 0 means 10s.
func NewDispatcher(channels []Channel, timeout time.Duration, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		channels: make(map[model.Channel]Channel, len(channels)),
		timeout:  timeout,
		logger:   logger,
	}
	for _, ch := range channels {
		d.channels[ch.Kind()] = ch
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Available reports whether a transport is registered for c.
func (d *Dispatcher) Available(c model.Channel) bool {
	_, ok := d.channels[c]
	return ok
}

// Dispatch attempts delivery on every channel the budget lists. Channels
// without budget configuration or without a registered transport are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, budget *model.Budget, alert *model.BudgetAlert) Report {
	var (
		results []Result
		seen    = make(map[model.Channel]bool)
		wg      sync.WaitGroup
	)
	for _, kind := range budget.Channels {
		if seen[kind] {
			continue
		}
		seen[kind] = true
		results = append(results, Result{Channel: kind})
	}

	for i := range results {
		kind := results[i].Channel
		ch, ok := d.channels[kind]
		switch {
		case !budget.ChannelConfigured(kind):
			results[i].Outcome = OutcomeSkipped
			results[i].Err = fmt.Errorf("%w: %s", model.ErrChannelNotConfigured, kind)
		case !ok:
			results[i].Outcome = OutcomeSkipped
			results[i].Err = fmt.Errorf("%w: %s", ErrChannelUnavailable, kind)
		default:
			wg.Add(1)
			go func(res *Result) {
				defer wg.Done()
				d.deliver(ctx, ch, budget, alert, res)
			}(&results[i])
		}
	}
	wg.Wait()

	for _, res := range results {
		if res.Outcome == OutcomeSkipped {
			d.record(res.Channel, res.Outcome, 0)
			d.logger.Warn("alert channel skipped",
				"budget_id", budget.ID,
				"alert_id", alert.ID,
				"channel", res.Channel,
				"reason", res.Err,
			)
		}
	}
	return Report{Results: results}
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, budget *model.Budget, alert *model.BudgetAlert, res *Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("channel %s panicked: %v", ch.Kind(), p)
		}
		elapsed := time.Since(start)
		d.record(res.Channel, res.Outcome, elapsed)
		if res.Outcome == OutcomeFailed {
			d.logger.Error("alert delivery failed",
				"budget_id", budget.ID,
				"alert_id", alert.ID,
				"channel", res.Channel,
				"duration", elapsed,
				"error", res.Err,
			)
			return
		}
		d.logger.Info("alert delivered",
			"budget_id", budget.ID,
			"alert_id", alert.ID,
			"channel", res.Channel,
			"duration", elapsed,
		)
	}()

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := ch.Deliver(cctx, budget, alert); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return
	}
	res.Outcome = OutcomeSucceeded
}

func (d *Dispatcher) record(c model.Channel, o Outcome, elapsed time.Duration) {
	if d.recorder != nil {
		d.recorder.RecordDelivery(string(c), string(o), elapsed.Seconds())
	}
}
