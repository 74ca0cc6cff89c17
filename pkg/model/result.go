package model

import "time"

type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
	Message  string        `json:"message,omitempty"`
}

// PlanResult is the machine readable record of one plan run, written by
// --report.
type PlanResult struct {
	Command    string       `json:"command"`
	Deployment string       `json:"deployment"`
	Status     string       `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    time.Time    `json:"ended_at"`
	Steps      []StepResult `json:"steps"`
	Error      string       `json:"error,omitempty"`
}

// Finish stamps the end time and derives Status from err.
func (r *PlanResult) Finish(err error, now time.Time) {
	r.EndedAt = now.UTC()
	if err != nil {
		r.Status = "failed"
		r.Error = err.Error()
		return
	}
	r.Status = "success"
}
