package model

import "testing"

func TestTransitionJobStatus(t *testing.T) {
	job := StageJob{JobID: "j1", Stage: "upscale", BatchID: 3}

	if err := TransitionJobStatus(&job, StatusPending, ""); err != nil {
		t.Fatalf("new -> pending: %v", err)
	}
	if err := TransitionJobStatus(&job, StatusRunning, ""); err != nil {
		t.Fatalf("pending -> running: %v", err)
	}
	if err := TransitionJobStatus(&job, StatusFailedRetryable, "tool_exit_nonzero"); err != nil {
		t.Fatalf("running -> failed_retryable: %v", err)
	}
	if job.Reason != "tool_exit_nonzero" {
		t.Fatalf("reason = %q, want tool_exit_nonzero", job.Reason)
	}
	if err := TransitionJobStatus(&job, StatusRunning, ""); err != nil {
		t.Fatalf("failed_retryable -> running (retry): %v", err)
	}
	if err := TransitionJobStatus(&job, StatusSuccess, ""); err != nil {
		t.Fatalf("running -> success: %v", err)
	}
}

func TestTransitionJobStatusRejectsIllegal(t *testing.T) {
	cases := []struct{ from, to string }{
		{StatusPending, StatusSuccess},
		{StatusPending, StatusFatal},
		{StatusSuccess, StatusRunning},
		{StatusFatal, StatusRunning},
		{StatusRunning, StatusFatal}, // fatal only after a retryable failure
	}
	for _, c := range cases {
		job := StageJob{JobID: "j", Stage: "denoise", BatchID: 1, Status: c.from}
		if err := TransitionJobStatus(&job, c.to, ""); err == nil {
			t.Fatalf("expected %q -> %q to be rejected", c.from, c.to)
		}
		if job.Status != c.from {
			t.Fatalf("status mutated on rejected transition: %q", job.Status)
		}
	}
}

func TestRecomputeCounts(t *testing.T) {
	m := RunManifest{Jobs: []StageJob{
		{Status: StatusSuccess},
		{Status: StatusSuccess},
		{Status: StatusFailedRetryable},
		{Status: StatusRunning},
		{Status: StatusPending},
		{Status: StatusFatal},
	}}
	m.RecomputeCounts()
	if m.Total != 6 || m.Succeeded != 2 || m.FailedRetryable != 1 || m.Running != 1 || m.Pending != 1 || m.Fatal != 1 {
		t.Fatalf("unexpected counts: %+v", m)
	}
}
