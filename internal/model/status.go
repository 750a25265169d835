package model

import "fmt"

const (
	StatusPending         = "pending"
	StatusRunning         = "running"
	StatusSuccess         = "success"
	StatusFailedRetryable = "failed_retryable"
	StatusFatal           = "fatal"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusPending: true,
		StatusRunning: true,
	},
	StatusRunning: {
		StatusRunning:         true,
		StatusSuccess:         true,
		StatusFailedRetryable: true,
	},
	StatusFailedRetryable: {
		StatusFailedRetryable: true,
		StatusRunning:         true, // next attempt, while attempts < max
		StatusFatal:           true, // attempts exhausted
	},
	StatusSuccess: {
		StatusSuccess: true,
	},
	StatusFatal: {
		StatusFatal: true,
	},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionJobStatus(job *StageJob, toStatus string, reason string) error {
	from := job.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid job status transition: %q -> %q (job_id=%s stage=%s batch=%d)",
			from, toStatus, job.JobID, job.Stage, job.BatchID)
	}
	job.Status = toStatus
	job.Reason = reason
	return nil
}
