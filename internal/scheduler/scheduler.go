// Package scheduler is the Fair Scheduler (spec.md §4.5): priority- and
// channel-fairness-aware selection on top of the Task Store's atomic
// claim primitive, gated by the Concurrency Governor so a claim is
// never committed into a resource class that is already saturated or
// backed off.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/governor"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/envutil"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/store"
)

type Scheduler struct {
	repo      store.TaskRepo
	gov       *governor.Governor
	tokenPool *governor.TokenPool
	log       *logger.Logger

	mu        sync.Mutex
	lastClaim map[uuid.UUID]time.Time
}

func New(repo store.TaskRepo, gov *governor.Governor, log *logger.Logger) *Scheduler {
	return &Scheduler{
		repo:      repo,
		gov:       gov,
		log:       log.With("component", "FairScheduler"),
		lastClaim: map[uuid.UUID]time.Time{},
	}
}

// WithTokenPool attaches a cross-worker TokenPool for deployments
// running more than one Worker Runtime process. A nil pool (the
// default) leaves admission purely process-local.
func (s *Scheduler) WithTokenPool(pool *governor.TokenPool) *Scheduler {
	s.tokenPool = pool
	return s
}

// ClaimNext selects and claims one Task, or returns (nil, nil) if
// nothing is presently claimable — either because the candidate set is
// empty or because every candidate's target resource class is
// saturated or backed off (spec.md §4.4 "the Governor may leave the
// queue non-empty").
func (s *Scheduler) ClaimNext(ctx context.Context) (*domain.Task, error) {
	dbc := dbctx.Context{Ctx: ctx}
	return s.repo.ClaimCandidates(dbc, 25, func(candidates []*domain.Task) (uuid.UUID, domain.Status, bool) {
		ordered := s.reorderForFairness(candidates)
		for _, t := range ordered {
			nextStatus, ok := store.NextGeneratingStatus(t.Status)
			if !ok {
				continue
			}
			stage, ok := domain.StageForGeneratingStatus(nextStatus)
			if !ok {
				continue
			}
			class := governor.ClassOf(stage)
			if s.gov.BackedOff(string(class)) {
				continue
			}
			if !s.gov.Admit(class) {
				continue
			}
			if s.tokenPool != nil {
				globalLimit := s.gov.Cap(class) * envutil.Int("GOVERNOR_GLOBAL_WORKER_COUNT", 1)
				ok, terr := s.tokenPool.Acquire(ctx, class, globalLimit)
				if terr == nil && !ok {
					s.gov.Release(class)
					continue
				}
			}
			s.noteClaim(t.ChannelID)
			return t.ID, nextStatus, true
		}
		return uuid.Nil, "", false
	})
}

// reorderForFairness keeps the Store's priority/FIFO ordering as the
// primary sort but demotes channels claimed very recently by this same
// scheduler instance, so one prolific channel can't starve its
// neighbors within a priority bucket (spec.md §4.5 "no channel is
// starved indefinitely").
func (s *Scheduler) reorderForFairness(candidates []*domain.Task) []*domain.Task {
	s.mu.Lock()
	last := make(map[uuid.UUID]time.Time, len(s.lastClaim))
	for k, v := range s.lastClaim {
		last[k] = v
	}
	s.mu.Unlock()

	out := make([]*domain.Task, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		ti, tj := last[out[i].ChannelID], last[out[j].ChannelID]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Scheduler) noteClaim(channelID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastClaim[channelID] = time.Now()
}
