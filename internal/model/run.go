package model

import "time"

// RunStatus is the state of a recorded search run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial" // some shards failed
	RunStatusFailed   RunStatus = "failed"
)

// SearchRun is one search execution kept in the run history.
type SearchRun struct {
	ID         string      `json:"id"`
	Signature  string      `json:"signature"`
	Selections []Selection `json:"municipios"`
	Status     RunStatus   `json:"status"`
	Collected  int         `json:"collected"`
	Records    int         `json:"records"`
	Warnings   int         `json:"warnings"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// RunOutcome is what a finished run reports back to the history.
type RunOutcome struct {
	Status    RunStatus
	Collected int
	Records   int
	Warnings  int
	Error     string
}

// OutcomeOf summarizes a search result.
func OutcomeOf(res *SearchResult) RunOutcome {
	status := RunStatusComplete
	if len(res.Warnings) > 0 {
		status = RunStatusPartial
		if len(res.Warnings) == len(res.Selections) {
			status = RunStatusFailed
		}
	}
	return RunOutcome{
		Status:    status,
		Collected: res.Collected,
		Records:   len(res.Records),
		Warnings:  len(res.Warnings),
	}
}
