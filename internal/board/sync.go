package board

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/store"
)

// Synchronizer owns both directions of board sync: outbound status
// pushes for Tasks whose status changed locally, and inbound polling
// for new pages and reviewer decisions.
type Synchronizer struct {
	client   *Client
	tasks    store.TaskRepo
	channels store.ChannelRepo
	log      *logger.Logger
	interval time.Duration

	mu         sync.Mutex
	lastPushed map[uuid.UUID]domain.Status
}

func NewSynchronizer(client *Client, tasks store.TaskRepo, channels store.ChannelRepo, log *logger.Logger, interval time.Duration) *Synchronizer {
	return &Synchronizer{
		client:     client,
		tasks:      tasks,
		channels:   channels,
		log:        log.With("component", "BoardSynchronizer"),
		interval:   interval,
		lastPushed: map[uuid.UUID]domain.Status{},
	}
}

// RunInbound polls the board every s.interval until ctx is canceled,
// creating new Tasks for new pages and applying reviewer decisions
// found on pages sitting at a review-gate board column.
func (s *Synchronizer) RunInbound(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil {
				s.log.Warn("inbound board poll failed", "error", err)
			}
		}
	}
}

func (s *Synchronizer) pollOnce(ctx context.Context) error {
	pages, err := s.client.ListUpdatedPages(ctx)
	if err != nil {
		return err
	}
	dbc := dbctx.Context{Ctx: ctx}
	for _, p := range pages {
		channelID, err := uuid.Parse(p.ChannelID)
		if err != nil {
			s.log.Warn("page has unparseable channel id, skipping", "page_id", p.ID, "channel_id", p.ChannelID)
			continue
		}
		task, created, err := s.tasks.UpsertTaskFromBoard(dbc, p.ID, channelID, p.Title, p.Topic, p.Narrative, p.Priority)
		if err != nil {
			s.log.Warn("upsert_task_from_board failed", "page_id", p.ID, "error", err)
			continue
		}
		if created {
			s.log.Info("created task from board page", "task_id", task.ID, "page_id", p.ID)
			continue
		}
		if err := s.applyReviewerDecision(ctx, task, p); err != nil {
			s.log.Warn("apply reviewer decision failed", "task_id", task.ID, "error", err)
		}
	}
	return nil
}

// applyReviewerDecision inspects a page currently sitting at a gate
// status and, if the board shows a decision, transitions the Task.
// Approval moves straight to the approved status; rejection parses the
// feedback note and applies it to the Resume Ledger so only the
// flagged sub-items regenerate (spec.md §4.3 scenario 3, §4.7).
func (s *Synchronizer) applyReviewerDecision(ctx context.Context, task *domain.Task, p Page) error {
	if !task.IsReviewGate() {
		return nil
	}
	dbc := dbctx.Context{Ctx: ctx}

	switch strings.ToLower(p.BoardStatus) {
	case "approved":
		target, ok := ApprovalTarget[task.Status]
		if !ok {
			return nil
		}
		now := time.Now()
		return s.tasks.Transition(dbc, task.ID, task.Status, target, map[string]interface{}{"review_completed_at": now})

	case "rejected":
		fb, err := ParseFeedback(p.RejectFeedback)
		if err != nil {
			// Unparsable feedback: surface the raw text via the error
			// log but never guess at the ledger (spec.md §4.7).
			_ = s.tasks.AppendError(dbc, task.ID, "unparsable rejection feedback: "+p.RejectFeedback+": "+err.Error())
			return nil
		}
		l, err := s.tasks.LoadLedger(dbc, task.ID)
		if err != nil {
			return err
		}
		// Narration and SFX are distinct stages (distinct generating
		// statuses, distinct ledgers) even though a single rejection
		// note can flag sub-items in both, so each index list is
		// applied to its own stage's ledger rather than one shared one.
		if len(fb.Narration) > 0 {
			l.Stage(domain.StageAudio).ApplyRejection(fb.Narration)
		}
		if len(fb.SFX) > 0 {
			l.Stage(domain.StageSFX).ApplyRejection(fb.SFX)
		}
		encoded, err := l.Encode()
		if err != nil {
			return err
		}
		target, ok := RejectionTarget[task.Status]
		if !ok {
			return nil
		}
		now := time.Now()
		return s.tasks.Transition(dbc, task.ID, task.Status, target, map[string]interface{}{
			"review_completed_at": now,
			"step_completion":      encoded,
		})
	}
	return nil
}

// PushIfChanged pushes t's status to the board only if it differs from
// the last value this Synchronizer instance pushed, so a fast-moving
// Task doesn't re-send an identical status on every call (spec.md
// §4.7 "debounced"). Callers invoke this synchronously right after a
// successful store.Transition — there is no separate outbound polling
// loop, since the Task Store already knows the instant a status
// changes and a poll would only rediscover that same fact later.
func (s *Synchronizer) PushIfChanged(ctx context.Context, t *domain.Task) error {
	s.mu.Lock()
	unchanged := s.lastPushed[t.ID] == t.Status
	s.mu.Unlock()
	if unchanged {
		return nil
	}
	if err := s.client.PushStatus(ctx, t.BoardPageID, t.Status); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastPushed[t.ID] = t.Status
	s.mu.Unlock()
	return nil
}
