// Package orchestrator is the Pipeline Orchestrator (spec.md §4.6): the
// state machine driver that walks one claimed Task through a single
// stage's sub-items, persists partial progress into the Resume Ledger
// after every sub-item, and either halts at a review gate or advances
// directly to the next stage.
//
// Grounded on the teacher's internal/jobs/runtime package: Context
// mirrors runtime.Context's role as the one object a stage execution
// touches; HaltForReview is runtime.Context.WaitForUser
// (internal/jobs/runtime/waitpoint.go) renamed and adapted from
// "waiting on a chat user" to "waiting on a board reviewer"; the stage
// loop's heartbeat/partial-persist-per-step shape follows
// internal/jobs/pipeline/node_videos_render/pipeline.go.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/apierr"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/governor"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/ledger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/observability"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/stagedriver"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/store"
)

// reviewReadyStatus maps each stage that has a review gate to the gate
// status it reaches once every sub-item is verified. Composites has no
// gate and so no entry here.
var reviewReadyStatus = map[domain.Stage]domain.Status{
	domain.StageAssets:     domain.StatusAssetsReady,
	domain.StageVideo:      domain.StatusVideoReady,
	domain.StageAudio:      domain.StatusAudioReady,
	domain.StageSFX:        domain.StatusSFXReady,
	domain.StageAssembly:   domain.StatusFinalReview,
}

var errorStatus = map[domain.Stage]domain.Status{
	domain.StageAssets:     domain.StatusAssetError,
	domain.StageComposites: domain.StatusCompositeError,
	domain.StageVideo:      domain.StatusVideoError,
	domain.StageAudio:      domain.StatusAudioError,
	domain.StageSFX:        domain.StatusSFXError,
	domain.StageAssembly:   domain.StatusAssemblyError,
}

// generatingStatus maps a stage to its own in-progress status.
var generatingStatus = map[domain.Stage]domain.Status{
	domain.StageAssets:     domain.StatusGeneratingAssets,
	domain.StageComposites: domain.StatusGeneratingComposites,
	domain.StageVideo:      domain.StatusGeneratingVideo,
	domain.StageAudio:      domain.StatusGeneratingAudio,
	domain.StageSFX:        domain.StatusGeneratingSFX,
	domain.StageAssembly:   domain.StatusGeneratingAssembly,
}

// MaxAttempts bounds how many times a stage retries a transient failure
// before the Orchestrator gives up and surfaces the stage's hard error
// status (spec.md §4.6 step 6).
const MaxAttempts = 5

// Orchestrator executes one stage at a time for a claimed Task.
type Orchestrator struct {
	repo      store.TaskRepo
	driver    *stagedriver.Driver
	gov       *governor.Governor
	tokenPool *governor.TokenPool
	log       *logger.Logger
}

func New(repo store.TaskRepo, driver *stagedriver.Driver, gov *governor.Governor, log *logger.Logger) *Orchestrator {
	return &Orchestrator{repo: repo, driver: driver, gov: gov, log: log.With("component", "Orchestrator")}
}

// WithTokenPool attaches the same cross-worker TokenPool the Fair
// Scheduler acquired from, so every admitted slot is released back to
// the shared counter exactly once.
func (o *Orchestrator) WithTokenPool(pool *governor.TokenPool) *Orchestrator {
	o.tokenPool = pool
	return o
}

// SubItemCounter returns how many sub-items a stage has for a given
// Task, so the stage loop knows its bound. Resolved per-Task because
// asset/composite/audio/SFX counts depend on the script's beat count,
// not a fixed constant.
type SubItemCounter func(t *domain.Task, stage domain.Stage) (int, error)

// Run executes stage for the already-claimed task t, whose Status must
// already be the stage's generating_ status (the caller — the claim
// path or a resume after retry — is responsible for that transition).
// It releases gov's slot for the stage's class on every return path,
// since admission happened at claim time in the Fair Scheduler.
func (o *Orchestrator) Run(ctx context.Context, t *domain.Task, stage domain.Stage, total int) error {
	class := governor.ClassOf(stage)
	defer o.gov.Release(class)
	if o.tokenPool != nil {
		defer o.tokenPool.Release(context.Background(), class)
	}

	ctx, span := observability.StartOrchestratorRun(ctx, string(stage), t.ID.String(), total)
	defer span.End()

	dbc := dbctx.Context{Ctx: ctx}
	l, err := o.repo.LoadLedger(dbc, t.ID)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	sl := l.Stage(stage)
	start := time.Now()

	pending := sl.Pending(total)
	for _, idx := range pending {
		if err := ctx.Err(); err != nil {
			// Graceful shutdown: stop between sub-items, leave the
			// Task claimed so the heartbeat-stale reaper hands it to
			// another worker rather than losing progress already
			// persisted to the ledger (spec.md §4.8).
			return err
		}

		outPath, perr := o.driver.ResolveOutputPath(t.ChannelID.String(), t.ID.String(), stage, idx)
		if perr != nil {
			return o.fail(ctx, t, stage, perr)
		}

		extra := map[string]string{}
		if stage == domain.StageAssembly {
			manifestPath := stagedriver.BuildManifestPath(outPath)
			if merr := o.buildAssemblyManifest(t, l, manifestPath); merr != nil {
				return o.fail(ctx, t, stage, merr)
			}
			extra["manifest_path"] = manifestPath
		}

		_, ierr := o.driver.InvokeStage(ctx, stage, stagedriver.Params{
			ChannelID:  t.ChannelID.String(),
			TaskID:     t.ID.String(),
			SubItem:    idx,
			OutputPath: outPath,
			Extra:      extra,
		})
		if ierr != nil {
			return o.handleStageError(ctx, t, stage, l, ierr)
		}

		sl.MarkDone(idx)
		if err := o.persistLedger(ctx, t, l); err != nil {
			return fmt.Errorf("persist ledger after sub-item %d: %w", idx, err)
		}
		if err := o.repo.Heartbeat(dbc, t.ID); err != nil {
			o.log.Warn("heartbeat failed mid-stage", "task_id", t.ID, "error", err)
		}
	}

	sl.Completed = true
	sl.DurationS = time.Since(start).Seconds()
	sl.ClearFailureAnnotations()
	if err := o.persistLedger(ctx, t, l); err != nil {
		return fmt.Errorf("persist ledger at stage completion: %w", err)
	}

	return o.completeStage(ctx, t, stage)
}

// handleStageError classifies a Stage Driver failure and either routes
// the Task toward a retry (leaving the ledger untouched, so Run's next
// invocation resumes at the same pending sub-item) or surfaces the
// stage's permanent error status.
func (o *Orchestrator) handleStageError(ctx context.Context, t *domain.Task, stage domain.Stage, l ledger.Ledger, cause error) error {
	kind, _ := apierr.KindOf(cause)
	dbc := dbctx.Context{Ctx: ctx}

	if cause2, ok := cause.(*apierr.Error); ok && cause2.Retryable() && t.Attempts < MaxAttempts {
		if err := o.repo.AppendError(dbc, t.ID, fmt.Sprintf("stage=%s retryable=%s: %v", stage, kind, cause)); err != nil {
			o.log.Warn("append_error failed", "task_id", t.ID, "error", err)
		}
		patch := map[string]interface{}{"attempts": t.Attempts + 1, "last_error_at": time.Now()}
		if err := o.repo.Transition(dbc, t.ID, t.Status, domain.StatusRetry, patch); err != nil {
			return err
		}
		return cause
	}
	return o.fail(ctx, t, stage, cause)
}

// fail moves the Task into the stage's hard error status. This is
// terminal until a human (via the board) or an operator requeues it.
func (o *Orchestrator) fail(ctx context.Context, t *domain.Task, stage domain.Stage, cause error) error {
	dbc := dbctx.Context{Ctx: ctx}
	if err := o.repo.AppendError(dbc, t.ID, fmt.Sprintf("stage=%s permanent: %v", stage, cause)); err != nil {
		o.log.Warn("append_error failed", "task_id", t.ID, "error", err)
	}
	to := errorStatus[stage]
	patch := map[string]interface{}{"last_error_at": time.Now()}
	if terr := o.repo.Transition(dbc, t.ID, t.Status, to, patch); terr != nil {
		return terr
	}
	return cause
}

// completeStage transitions the Task once every sub-item in stage is
// verified: into the stage's review-gate "ready" status if one exists
// (HaltForReview), or straight into the next stage's generating_
// status when it doesn't (composites today, per domain.CanTransition).
func (o *Orchestrator) completeStage(ctx context.Context, t *domain.Task, stage domain.Stage) error {
	dbc := dbctx.Context{Ctx: ctx}
	if ready, ok := reviewReadyStatus[stage]; ok {
		return o.HaltForReview(ctx, t, ready)
	}
	// Composites has no gate: fall through to the next stage directly.
	next, ok := nextStageAfter(stage)
	if !ok {
		return fmt.Errorf("no successor configured for gateless stage %s", stage)
	}
	return o.repo.Transition(dbc, t.ID, t.Status, generatingStatus[next], nil)
}

func nextStageAfter(stage domain.Stage) (domain.Stage, bool) {
	for i, s := range domain.StageOrder {
		if s == stage && i+1 < len(domain.StageOrder) {
			return domain.StageOrder[i+1], true
		}
	}
	return "", false
}

// HaltForReview is the review-gate primitive (spec.md §4.6): it
// transitions the Task to its gate status, clears the claim so no
// worker polls it further, and stamps ReviewStartedAt for the
// dwell-time metric. Mirrors runtime.Context.WaitForUser's "set status,
// clear locked_at, persist, done" shape — the board round trip happens
// entirely out of band via the Board Synchronizer.
func (o *Orchestrator) HaltForReview(ctx context.Context, t *domain.Task, gateStatus domain.Status) error {
	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now()
	patch := map[string]interface{}{
		"review_started_at": now,
		"locked_at":          nil,
	}
	if err := o.repo.Transition(dbc, t.ID, t.Status, gateStatus, patch); err != nil {
		return err
	}
	o.log.Info("task halted at review gate", "task_id", t.ID, "status", gateStatus)
	return nil
}

// buildAssemblyManifest assembles the clip list the external assembly
// tool consumes from the already-completed video/audio/SFX stage
// outputs, deriving the clip count from how many video sub-items the
// ledger recorded done (spec.md §6.1's manifest contract).
func (o *Orchestrator) buildAssemblyManifest(t *domain.Task, l ledger.Ledger, manifestPath string) error {
	videoLedger := l.Stage(domain.StageVideo)
	clipCount := len(videoLedger.Done)
	if clipCount == 0 {
		return fmt.Errorf("cannot assemble task %s: video stage ledger has no completed clips", t.ID)
	}

	clips := make([]stagedriver.ManifestClip, 0, clipCount)
	for idx := 1; idx <= clipCount; idx++ {
		if !videoLedger.IsDone(idx) {
			continue
		}
		videoPath, err := o.driver.ResolveOutputPath(t.ChannelID.String(), t.ID.String(), domain.StageVideo, idx)
		if err != nil {
			return err
		}
		narrationPath, err := o.driver.ResolveOutputPath(t.ChannelID.String(), t.ID.String(), domain.StageAudio, idx)
		if err != nil {
			return err
		}
		sfxPath := ""
		if sfxLedger := l.Stage(domain.StageSFX); sfxLedger.IsDone(idx) {
			if p, err := o.driver.ResolveOutputPath(t.ChannelID.String(), t.ID.String(), domain.StageSFX, idx); err == nil {
				sfxPath = p
			}
		}
		clips = append(clips, stagedriver.ManifestClip{
			ClipNumber:    idx,
			VideoPath:     videoPath,
			NarrationPath: narrationPath,
			SFXPath:       sfxPath,
		})
	}

	return stagedriver.WriteManifest(manifestPath, stagedriver.Manifest{Clips: clips})
}

func (o *Orchestrator) persistLedger(ctx context.Context, t *domain.Task, l ledger.Ledger) error {
	encoded, err := l.Encode()
	if err != nil {
		return err
	}
	dbc := dbctx.Context{Ctx: ctx}
	return o.repo.PersistLedger(dbc, t.ID, t.Status, encoded)
}
