// Package taskrun is the optional Temporal-backed execution substrate
// for one Task (spec.md §9 Open Questions): a long-lived workflow that
// ticks a Task through generating_ stages and suspends at review gates
// on a signal+timer select instead of the Worker Runtime's polling
// ticker. Off by default (RUN_TEMPORAL=false); the Fair Scheduler and
// Worker Runtime remain the primary execution path either way, since a
// deployment may run neither, one, or both against the same Task Store.
package taskrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"
)

func Workflow(ctx workflow.Context) error {
	taskID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if taskID == "" {
		return fmt.Errorf("taskrun: missing task_id")
	}

	const (
		defaultPollInterval     = 2 * time.Second
		waitingReviewerInterval = 2 * time.Minute
		continueTickLimit       = 2000
		continueHistoryLimit    = 15000
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 24 * time.Hour,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         nil, // stage retries are handled at the Orchestrator level
	})

	resumeCh := workflow.GetSignalChannel(ctx, SignalResume)
	tickCount := 0

	for {
		tickCount++
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, taskID).Get(ctx, &out); err != nil {
			return err
		}

		status := strings.ToLower(strings.TrimSpace(out.Status))
		switch {
		case isDone(status):
			return nil
		case isHardError(status):
			return fmt.Errorf("task failed (stage=%s status=%s)", strings.TrimSpace(out.Stage), status)
		case isReviewGate(status):
			waitForResumeOrPoll(ctx, resumeCh, waitingReviewerInterval)
			if shouldContinueAsNew(ctx, tickCount, continueTickLimit, continueHistoryLimit) {
				return workflow.NewContinueAsNewError(ctx, Workflow)
			}
		default:
			if d := nextWait(ctx, out.WaitUntil, defaultPollInterval); d > 0 {
				if err := workflow.Sleep(ctx, d); err != nil {
					return err
				}
			}
			if shouldContinueAsNew(ctx, tickCount, continueTickLimit, continueHistoryLimit) {
				return workflow.NewContinueAsNewError(ctx, Workflow)
			}
		}
	}
}

func isDone(status string) bool {
	switch status {
	case "approved", "published", "uploading":
		return true
	default:
		return false
	}
}

func isHardError(status string) bool {
	return strings.HasSuffix(status, "_error")
}

func isReviewGate(status string) bool {
	switch status {
	case "assets_ready", "video_ready", "audio_ready", "sfx_ready", "final_review":
		return true
	default:
		return false
	}
}

func waitForResumeOrPoll(ctx workflow.Context, ch workflow.ReceiveChannel, maxWait time.Duration) {
	timer := workflow.NewTimer(ctx, maxWait)
	sel := workflow.NewSelector(ctx)
	sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
		var v any
		c.Receive(ctx, &v)
	})
	sel.AddFuture(timer, func(f workflow.Future) {})
	sel.Select(ctx)
}

func nextWait(ctx workflow.Context, waitUntil *time.Time, def time.Duration) time.Duration {
	if waitUntil == nil || waitUntil.IsZero() {
		return def
	}
	now := workflow.Now(ctx)
	if waitUntil.Before(now) {
		return def
	}
	d := waitUntil.Sub(now)
	if d <= 0 {
		return def
	}
	if d > 15*time.Minute {
		return 15 * time.Minute
	}
	return d
}

func shouldContinueAsNew(ctx workflow.Context, ticks, maxTicks, maxHistory int) bool {
	if maxTicks > 0 && ticks >= maxTicks {
		return true
	}
	info := workflow.GetInfo(ctx)
	if info == nil || maxHistory <= 0 {
		return false
	}
	return info.GetCurrentHistoryLength() >= maxHistory
}
