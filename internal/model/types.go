package model

// RunManifest is the per-run checkpoint file. It exists for inspection and
// post-mortems; a restart re-derives batch numbering from the on-disk batch
// directories, never from this file.
type RunManifest struct {
	SchemaVersion   int        `json:"schema_version"`
	RunID           string     `json:"run_id"`
	CreatedAt       string     `json:"created_at"`
	UpdatedAt       string     `json:"updated_at,omitempty"`
	InputVideo      string     `json:"input_video"`
	OutputVideo     string     `json:"output_video"`
	FramesPerBatch  int        `json:"frames_per_batch"`
	StartBatch      int        `json:"start_batch"`
	EndBatch        int        `json:"end_batch"`
	Total           int        `json:"total"`
	Pending         int        `json:"pending"`
	Running         int        `json:"running"`
	Succeeded       int        `json:"succeeded"`
	FailedRetryable int        `json:"failed_retryable"`
	Fatal           int        `json:"fatal"`
	Jobs            []StageJob `json:"jobs"`
}

// StageJob is one external-tool invocation over one batch for one stage.
// Jobs are never subdivided below batch granularity.
type StageJob struct {
	JobID         string `json:"job_id"`
	Stage         string `json:"stage"`
	BatchID       int    `json:"batch_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	LastAttemptAt string `json:"last_attempt_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// RecomputeCounts refreshes the aggregate counters from the job list.
func (m *RunManifest) RecomputeCounts() {
	pending, running, succeeded, failedRetryable, fatal := 0, 0, 0, 0, 0
	for _, j := range m.Jobs {
		switch j.Status {
		case StatusPending:
			pending++
		case StatusRunning:
			running++
		case StatusSuccess:
			succeeded++
		case StatusFailedRetryable:
			failedRetryable++
		case StatusFatal:
			fatal++
		}
	}
	m.Total = len(m.Jobs)
	m.Pending = pending
	m.Running = running
	m.Succeeded = succeeded
	m.FailedRetryable = failedRetryable
	m.Fatal = fatal
}
