package taskrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/governor"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/orchestrator"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/store"

	"go.temporal.io/sdk/activity"
)

// Activities is the Tick Activity's dependency bundle: the same Task
// Store, Orchestrator, and Governor the Worker Runtime's poll loop
// uses, so a Task can move between the two execution paths (a crashed
// Temporal worker's Task is just as reclaimable by the poll-based
// Worker Runtime, and vice versa) without any Task-side distinction.
type Activities struct {
	Log          *logger.Logger
	Tasks        store.TaskRepo
	Orchestrator *orchestrator.Orchestrator
	Governor     *governor.Governor
	Counts       orchestrator.SubItemCounter
}

// Tick advances taskID by at most one stage's worth of Orchestrator
// work, or reports its current status untouched when it is at a review
// gate, terminal, or presently ungoverned (class at cap / backed off).
func (a *Activities) Tick(ctx context.Context, taskID string) (TickResult, error) {
	res := TickResult{TaskID: strings.TrimSpace(taskID)}
	if a == nil || a.Tasks == nil || a.Orchestrator == nil || a.Governor == nil || a.Counts == nil {
		return res, fmt.Errorf("taskrun: activity not configured")
	}

	id, err := uuid.Parse(res.TaskID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("taskrun: invalid task_id")
	}

	dbc := dbctx.Context{Ctx: ctx}
	task, err := a.Tasks.GetByID(dbc, id)
	if err != nil {
		return res, err
	}
	if task == nil {
		return res, fmt.Errorf("taskrun: task not found")
	}

	if task.IsReviewGate() || isTerminalStatus(task.Status) {
		res.Status = string(task.Status)
		return res, nil
	}

	stage, alreadyGenerating := domain.StageForGeneratingStatus(task.Status)
	if !alreadyGenerating {
		next, ok := store.NextGeneratingStatus(task.Status)
		if !ok {
			// draft/claimed or anything else not yet actionable from this
			// workflow's point of view; report and let the caller poll again.
			res.Status = string(task.Status)
			return res, nil
		}
		nextStage, _ := domain.StageForGeneratingStatus(next)
		class := governor.ClassOf(nextStage)
		if until, backed := a.Governor.BackoffUntil(string(class)); backed {
			res.Status = string(task.Status)
			res.WaitUntil = &until
			return res, nil
		}
		if !a.Governor.Admit(class) {
			res.Status = string(task.Status)
			return res, nil
		}
		if err := a.Tasks.Transition(dbc, id, task.Status, next, nil); err != nil {
			a.Governor.Release(class)
			return res, err
		}
		task.Status = next
		stage = nextStage
	} else {
		class := governor.ClassOf(stage)
		if until, backed := a.Governor.BackoffUntil(string(class)); backed {
			res.Status = string(task.Status)
			res.WaitUntil = &until
			return res, nil
		}
		if !a.Governor.Admit(class) {
			res.Status = string(task.Status)
			return res, nil
		}
	}

	stopHB := a.startHeartbeat(ctx, id)
	defer stopHB()

	total, err := a.Counts(task, stage)
	if err != nil {
		return res, fmt.Errorf("taskrun: sub-item count: %w", err)
	}

	if err := a.Orchestrator.Run(ctx, task, stage, total); err != nil && a.Log != nil {
		a.Log.Warn("taskrun: stage execution ended with error", "task_id", id, "stage", stage, "error", err)
	}

	updated, err := a.Tasks.GetByID(dbc, id)
	if err != nil {
		return res, err
	}
	if updated != nil {
		res.Status = string(updated.Status)
	}
	res.Stage = string(stage)
	return res, nil
}

func isTerminalStatus(s domain.Status) bool {
	switch s {
	case domain.StatusApproved, domain.StatusUploading, domain.StatusUploadError, domain.StatusPublished,
		domain.StatusAssetError, domain.StatusCompositeError, domain.StatusVideoError,
		domain.StatusAudioError, domain.StatusSFXError, domain.StatusAssemblyError:
		return true
	default:
		return false
	}
}

func (a *Activities) startHeartbeat(ctx context.Context, taskID uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		temporalHB := time.NewTicker(10 * time.Second)
		defer temporalHB.Stop()
		dbHB := time.NewTicker(30 * time.Second)
		defer dbHB.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-temporalHB.C:
				activity.RecordHeartbeat(ctx)
			case <-dbHB.C:
				_ = a.Tasks.Heartbeat(dbctx.Context{Ctx: ctx}, taskID)
			}
		}
	}()
	return func() { close(done) }
}
