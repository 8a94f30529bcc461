package taskrun

import "time"

const (
	WorkflowName = "task_run"
	ActivityTick = "task_run_tick"
	SignalResume = "task_resume"
)

// TickResult is the Activity's report back to the workflow loop: enough
// for the workflow to decide whether to keep polling, wait for a
// reviewer signal, or exit.
type TickResult struct {
	TaskID    string     `json:"task_id"`
	Status    string     `json:"status"`
	Stage     string     `json:"stage,omitempty"`
	WaitUntil *time.Time `json:"wait_until,omitempty"`
}
