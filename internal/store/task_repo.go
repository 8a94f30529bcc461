// Package store is the Task Store (spec.md §4.1): the single source of
// truth for Tasks, Channels, and cost entries. It owns uniqueness and
// foreign-key enforcement, indexed lookup, and the append-only error
// log, following the teacher's repos.JobRunRepo shape
// (internal/data/repos/jobs/job_run.go) — an interface plus a
// *gorm.DB-backed struct behind a constructor, every method taking a
// dbctx.Context so callers can opt into an ambient transaction.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/apierr"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/ledger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
)

// ClaimableStatuses is the candidate set for the Fair Scheduler: queued
// and retry Tasks, plus the *_approved re-entry statuses the Board
// Synchronizer sets directly (spec.md §4.5, §4.6 "board-driven").
// StatusApproved is intentionally excluded: the approved -> uploading
// handoff belongs to the external publish collaborator, not a claimed
// Worker Runtime stage execution (spec.md Non-goals, §4.6 step 6).
var ClaimableStatuses = []domain.Status{
	domain.StatusQueued,
	domain.StatusRetry,
	domain.StatusAssetsApproved,
	domain.StatusCompositesApproved,
	domain.StatusVideoApproved,
	domain.StatusAudioApproved,
	domain.StatusSFXApproved,
}

// NextGeneratingStatus returns the generating_S status a claimed Task
// should move into, given its current status.
func NextGeneratingStatus(current domain.Status) (domain.Status, bool) {
	switch current {
	case domain.StatusQueued, domain.StatusRetry:
		// Caller must already know which stage failed/queued for retry;
		// StatusRetry alone is ambiguous without the Ledger, so the
		// Orchestrator resolves the concrete next stage itself. Queued
		// Tasks (first entry) always start at assets.
		return domain.StatusGeneratingAssets, current == domain.StatusQueued
	case domain.StatusAssetsApproved:
		return domain.StatusGeneratingComposites, true
	case domain.StatusCompositesApproved:
		return domain.StatusGeneratingVideo, true
	case domain.StatusVideoApproved:
		return domain.StatusGeneratingAudio, true
	case domain.StatusAudioApproved:
		return domain.StatusGeneratingSFX, true
	case domain.StatusSFXApproved:
		return domain.StatusGeneratingAssembly, true
	default:
		return "", false
	}
}

// TaskRepo is the Task Store's public contract (spec.md §4.1).
type TaskRepo interface {
	UpsertTaskFromBoard(dbc dbctx.Context, pageID string, channelID uuid.UUID, title, topic, narrativeDirection string, priority domain.Priority) (task *domain.Task, created bool, err error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Task, error)
	GetByBoardPageID(dbc dbctx.Context, pageID string) (*domain.Task, error)

	// ClaimCandidates locks up to limit claimable rows in priority/FIFO
	// order within a single transaction and hands them to fn for
	// fairness reordering and Governor admission. fn returns the chosen
	// Task's id and the status to claim it into; fn may return
	// (uuid.Nil, "", false) to admit nothing, in which case the
	// transaction commits having mutated no rows (spec.md §4.5
	// "skipped candidates are not mutated").
	ClaimCandidates(dbc dbctx.Context, limit int, fn func(candidates []*domain.Task) (chosen uuid.UUID, nextStatus domain.Status, ok bool)) (*domain.Task, error)

	Transition(dbc dbctx.Context, id uuid.UUID, from, to domain.Status, patch map[string]interface{}) error
	// PersistLedger writes the Resume Ledger column without changing
	// Status, guarded by a status match so a concurrent writer that
	// moved the Task elsewhere wins instead of being silently
	// overwritten. Used after every sub-item completes within a stage,
	// where no status transition occurs yet (spec.md §4.3).
	PersistLedger(dbc dbctx.Context, id uuid.UUID, currentStatus domain.Status, encoded datatypes.JSON) error
	AppendError(dbc dbctx.Context, id uuid.UUID, text string) error
	RecordCost(dbc dbctx.Context, id uuid.UUID, stage domain.Stage, amountUSD float64, units int) error
	LoadLedger(dbc dbctx.Context, id uuid.UUID) (ledger.Ledger, error)

	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	ReleaseClaim(dbc dbctx.Context, id uuid.UUID, toStatus domain.Status) error
	ReclaimStale(dbc dbctx.Context, staleAfter time.Duration) (int64, error)
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{db: db, log: baseLog.With("repo", "TaskRepo")}
}

func (r *taskRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

// UpsertTaskFromBoard is idempotent on pageID: a second call for the
// same page is a no-op that returns the existing row with created=false
// (spec.md §3 invariant 1, §7 "AlreadyExists... swallow; log at info").
func (r *taskRepo) UpsertTaskFromBoard(dbc dbctx.Context, pageID string, channelID uuid.UUID, title, topic, narrativeDirection string, priority domain.Priority) (*domain.Task, bool, error) {
	if pageID == "" || channelID == uuid.Nil {
		return nil, false, fmt.Errorf("upsert_task_from_board: page_id and channel_id are required")
	}
	tx := r.tx(dbc)

	emptyLedger, err := ledger.Ledger{}.Encode()
	if err != nil {
		return nil, false, err
	}

	candidate := &domain.Task{
		ID:                 uuid.New(),
		ChannelID:          channelID,
		BoardPageID:        pageID,
		Title:              title,
		Topic:              topic,
		NarrativeDirection: narrativeDirection,
		Priority:           priority,
		Status:             domain.StatusQueued,
		StepCompletion:     emptyLedger,
	}

	res := tx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "board_page_id"}}, DoNothing: true}).
		Create(candidate)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Info("task created from board page", "board_page_id", pageID, "channel_id", channelID)
		return candidate, true, nil
	}

	existing, err := r.GetByBoardPageID(dbc, pageID)
	if err != nil {
		return nil, false, err
	}
	r.log.Info("task already exists for board page, skipping", "board_page_id", pageID)
	return existing, false, nil
}

func (r *taskRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Task, error) {
	var t domain.Task
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *taskRepo) GetByBoardPageID(dbc dbctx.Context, pageID string) (*domain.Task, error) {
	var t domain.Task
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("board_page_id = ?", pageID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ClaimCandidates implements the atomic claim semantics of spec.md
// §4.5: SELECT ... FOR UPDATE SKIP LOCKED ordered by priority DESC then
// created_at ASC, handed to fn for fairness/admission, then a single
// conditional UPDATE commits the chosen row's claim in the same
// transaction that holds the row lock.
func (r *taskRepo) ClaimCandidates(dbc dbctx.Context, limit int, fn func([]*domain.Task) (uuid.UUID, domain.Status, bool)) (*domain.Task, error) {
	if limit <= 0 {
		limit = 25
	}
	base := r.tx(dbc)
	var claimed *domain.Task
	err := base.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var candidates []*domain.Task
		err := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ?", ClaimableStatuses).
			Order("CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END ASC, created_at ASC").
			Limit(limit).
			Find(&candidates).Error
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		chosenID, nextStatus, ok := fn(candidates)
		if !ok || chosenID == uuid.Nil {
			return nil
		}

		var chosen *domain.Task
		for _, c := range candidates {
			if c.ID == chosenID {
				chosen = c
				break
			}
		}
		if chosen == nil {
			return fmt.Errorf("claim: admitted id %s not among locked candidates", chosenID)
		}

		now := time.Now()
		res := txx.Model(&domain.Task{}).
			Where("id = ? AND status = ?", chosen.ID, chosen.Status).
			Updates(map[string]interface{}{
				"status":       nextStatus,
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost race to a concurrent writer between the SELECT and
			// the UPDATE; treat as "nothing claimed" rather than error.
			return nil
		}
		chosen.Status = nextStatus
		chosen.LockedAt = &now
		chosen.HeartbeatAt = &now
		claimed = chosen
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Transition performs the conditional update at the heart of every
// status change: it only applies if the row's current status still
// matches from, so a lost race (e.g. the Board Synchronizer and the
// Orchestrator both trying to move the same Task) resolves to a no-op
// rather than corrupting state (spec.md §4.7 "arbitration").
//
// Any (from, to) pair outside domain.CanTransition is rejected before a
// query is even issued.
func (r *taskRepo) Transition(dbc dbctx.Context, id uuid.UUID, from, to domain.Status, patch map[string]interface{}) error {
	if !domain.CanTransition(from, to) {
		return apierr.New(apierr.KindInvalidTransition, fmt.Errorf("transition %s -> %s is not permitted", from, to))
	}
	updates := map[string]interface{}{}
	for k, v := range patch {
		updates[k] = v
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()

	res := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Task{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.New(apierr.KindInvalidTransition, fmt.Errorf("task %s is not in status %s", id, from))
	}
	return nil
}

// PersistLedger implements TaskRepo.PersistLedger.
func (r *taskRepo) PersistLedger(dbc dbctx.Context, id uuid.UUID, currentStatus domain.Status, encoded datatypes.JSON) error {
	res := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Task{}).
		Where("id = ? AND status = ?", id, currentStatus).
		Updates(map[string]interface{}{
			"step_completion": encoded,
			"heartbeat_at":    time.Now(),
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.New(apierr.KindInvalidTransition, fmt.Errorf("task %s is not in status %s", id, currentStatus))
	}
	return nil
}

// AppendError appends a timestamp-prefixed line to the Task's error
// log. The log is append-only (spec.md §3 invariant 3): this never
// rewrites prior entries, only concatenates.
func (r *taskRepo) AppendError(dbc dbctx.Context, id uuid.UUID, text string) error {
	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), text)
	return r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Task{}).
		Where("id = ?", id).
		Update("error_log", gorm.Expr("COALESCE(error_log, '') || ?", line)).Error
}

// RecordCost appends a CostEntry and bumps the denormalized running
// total in the same transaction, preserving invariant 5 (pipeline cost
// equals the sum of cost entries outside an active transaction).
func (r *taskRepo) RecordCost(dbc dbctx.Context, id uuid.UUID, stage domain.Stage, amountUSD float64, units int) error {
	base := r.tx(dbc)
	return base.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		entry := &domain.CostEntry{
			ID:        uuid.New(),
			TaskID:    id,
			Stage:     stage,
			AmountUSD: amountUSD,
			Units:     units,
		}
		if err := txx.Create(entry).Error; err != nil {
			return err
		}
		return txx.Model(&domain.Task{}).
			Where("id = ?", id).
			Update("pipeline_cost_usd", gorm.Expr("pipeline_cost_usd + ?", amountUSD)).Error
	})
}

func (r *taskRepo) LoadLedger(dbc dbctx.Context, id uuid.UUID) (ledger.Ledger, error) {
	t, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return ledger.Decode(t.StepCompletion)
}

// Heartbeat refreshes heartbeat_at for a claimed, in-flight Task so the
// stale-claim reaper (ReclaimStale) doesn't treat it as abandoned.
func (r *taskRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	now := time.Now()
	return r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Task{}).
		Where("id = ? AND locked_at IS NOT NULL", id).
		Updates(map[string]interface{}{"heartbeat_at": now, "updated_at": now}).Error
}

// ReleaseClaim clears locked_at and sets the Task to toStatus, used by
// graceful shutdown (spec.md §4.8) and by review-gate halts (spec.md
// §4.6) — both "stop touching this Task without losing any recorded
// progress".
func (r *taskRepo) ReleaseClaim(dbc dbctx.Context, id uuid.UUID, toStatus domain.Status) error {
	now := time.Now()
	return r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Task{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     toStatus,
			"locked_at":  nil,
			"updated_at": now,
		}).Error
}

// ReclaimStale releases the claim on any Task whose heartbeat is older
// than staleAfter, putting it back to retry so the Fair Scheduler can
// hand it to a different worker. This is how a Task survives its
// worker's ungraceful death (spec.md §5 "re-claimable after the
// heartbeat timeout").
func (r *taskRepo) ReclaimStale(dbc dbctx.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleAfter)
	res := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Task{}).
		Where("locked_at IS NOT NULL AND heartbeat_at < ?", cutoff).
		Updates(map[string]interface{}{
			"status":     domain.StatusRetry,
			"locked_at":  nil,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}
