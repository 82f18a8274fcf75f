package tracker

// Recorder receives engine instrumentation. *metrics.Metrics implements it.
type Recorder interface {
	RecordEvaluation(tenantID, budgetID string, pct float64, err error)
	RecordAlertIssued(alertType string)
	RecordAlertSkipped(reason string)
	RecordBatch(seconds float64, failures int)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvaluation(string, string, float64, error) {}
func (nopRecorder) RecordAlertIssued(string)                        {}
func (nopRecorder) RecordAlertSkipped(string)                       {}
func (nopRecorder) RecordBatch(float64, int)                        {}
