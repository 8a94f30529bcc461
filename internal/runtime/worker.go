// Package runtime is the Worker Runtime (spec.md §4.8): the polling
// loop pool that claims Tasks via the Fair Scheduler, resolves how many
// sub-items the claimed stage has, and hands execution to the
// Orchestrator, wrapped in heartbeat/panic-recovery/graceful-shutdown
// exactly like the teacher's internal/jobs/worker/worker.go.
package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/board"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/governor"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/orchestrator"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/envutil"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/store"
)

// panicError mirrors the teacher's worker.panicError: a generic message
// so a subprocess panic payload never leaks into the durable error log.
type panicError struct{ val any }

func (e *panicError) Error() string { return "panic: unexpected error" }

// Worker claims Tasks and drives them one stage-execution at a time.
type Worker struct {
	log       *logger.Logger
	tasks     store.TaskRepo
	sched     ClaimFunc
	orch      *orchestrator.Orchestrator
	gov       *governor.Governor
	boardSync *board.Synchronizer
	counts    orchestrator.SubItemCounter

	heartbeatInterval time.Duration
}

// ClaimFunc abstracts the Fair Scheduler so Worker doesn't import it
// directly, keeping the dependency direction scheduler -> runtime
// rather than a cycle.
type ClaimFunc func(ctx context.Context) (*domain.Task, error)

func NewWorker(log *logger.Logger, tasks store.TaskRepo, claim ClaimFunc, orch *orchestrator.Orchestrator, gov *governor.Governor, sync *board.Synchronizer, counts orchestrator.SubItemCounter) *Worker {
	return &Worker{
		log:               log.With("component", "WorkerRuntime"),
		tasks:             tasks,
		sched:             claim,
		orch:              orch,
		gov:               gov,
		boardSync:         sync,
		counts:            counts,
		heartbeatInterval: 30 * time.Second,
	}
}

// Start spawns WORKER_CONCURRENCY (default 4) claim-loop goroutines.
func (w *Worker) Start(ctx context.Context) {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("starting worker pool", "concurrency", concurrency)
	for i := 0; i < concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
	go w.reapStaleLoop(ctx)
}

// ReloadGovernorCaps re-reads GOVERNOR_MAX_ASSETS/VIDEO/AUDIO from the
// environment and applies them to the Governor, without restarting
// in-flight stage executions (spec.md §4.8). Called by the owning
// process's SIGHUP handler.
func (w *Worker) ReloadGovernorCaps() {
	caps := map[governor.Class]int{
		governor.ClassAssets: envutil.Int("GOVERNOR_MAX_ASSETS", governor.DefaultCaps[governor.ClassAssets]),
		governor.ClassVideo:  envutil.Int("GOVERNOR_MAX_VIDEO", governor.DefaultCaps[governor.ClassVideo]),
		governor.ClassAudio:  envutil.Int("GOVERNOR_MAX_AUDIO", governor.DefaultCaps[governor.ClassAudio]),
	}
	w.gov.SetCaps(caps)
	w.log.Info("reloaded governor caps from environment", "caps", caps)
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			task, err := w.sched(ctx)
			if err != nil {
				w.log.Warn("claim failed", "worker_id", workerID, "error", err)
				continue
			}
			if task == nil {
				continue
			}
			w.execute(ctx, workerID, task)
		}
	}
}

func (w *Worker) execute(ctx context.Context, workerID int, task *domain.Task) {
	stopHB := w.startHeartbeat(ctx, task.ID)
	defer stopHB()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("task execution panic", "worker_id", workerID, "task_id", task.ID, "panic", r)
			dbc := dbctx.Context{Ctx: ctx}
			_ = w.tasks.AppendError(dbc, task.ID, (&panicError{val: r}).Error())
		}
	}()

	stage, err := currentStage(task.Status)
	if err != nil {
		w.log.Warn("claimed task has no resolvable stage", "task_id", task.ID, "status", task.Status, "error", err)
		return
	}
	total, err := w.counts(task, stage)
	if err != nil {
		w.log.Warn("sub-item count resolution failed", "task_id", task.ID, "stage", stage, "error", err)
		return
	}

	if err := w.orch.Run(ctx, task, stage, total); err != nil {
		w.log.Warn("stage execution ended with error", "task_id", task.ID, "stage", stage, "error", err)
	}

	if refreshed, gerr := w.tasks.GetByID(dbctx.Context{Ctx: ctx}, task.ID); gerr == nil && refreshed != nil && w.boardSync != nil {
		if perr := w.boardSync.PushIfChanged(ctx, refreshed); perr != nil {
			w.log.Warn("board push failed", "task_id", task.ID, "error", perr)
		}
	}
}

// currentStage maps a generating_ status onto the stage it is
// executing. Tasks are only ever dispatched to the Orchestrator while
// in one of these statuses; the Fair Scheduler guarantees that.
func currentStage(status domain.Status) (domain.Stage, error) {
	stage, ok := domain.StageForGeneratingStatus(status)
	if !ok {
		return "", unresolvedStageError{status}
	}
	return stage, nil
}

type unresolvedStageError struct{ status domain.Status }

func (e unresolvedStageError) Error() string {
	return "no stage maps to status " + string(e.status)
}

func (w *Worker) startHeartbeat(ctx context.Context, taskID uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(w.heartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				_ = w.tasks.Heartbeat(dbctx.Context{Ctx: ctx}, taskID)
			}
		}
	}()
	return func() { close(done) }
}

// reapStaleLoop periodically releases claims whose heartbeat went
// silent (a crashed worker), handing the Task back to the Fair
// Scheduler via StatusRetry.
func (w *Worker) reapStaleLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.tasks.ReclaimStale(dbctx.Context{Ctx: ctx}, 5*time.Minute)
			if err != nil {
				w.log.Warn("reclaim stale failed", "error", err)
				continue
			}
			if n > 0 {
				w.log.Info("reclaimed stale task claims", "count", n)
			}
		}
	}
}
