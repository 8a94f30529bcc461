package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/governor"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/store"
)

// fakeTaskRepo hands a fixed candidate set straight to ClaimCandidates'
// selector, the way the real Task Store would after its row-lock SELECT,
// without needing a database.
type fakeTaskRepo struct {
	store.TaskRepo
	candidates []*domain.Task
	lastChosen uuid.UUID
	lastStatus domain.Status
	called     bool
}

func (f *fakeTaskRepo) ClaimCandidates(dbc dbctx.Context, limit int, fn func([]*domain.Task) (uuid.UUID, domain.Status, bool)) (*domain.Task, error) {
	f.called = true
	chosen, status, ok := fn(f.candidates)
	if !ok {
		return nil, nil
	}
	f.lastChosen = chosen
	f.lastStatus = status
	for _, t := range f.candidates {
		if t.ID == chosen {
			return t, nil
		}
	}
	return nil, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func taskReadyFor(status domain.Status, priority domain.Priority, channel uuid.UUID, created time.Time) *domain.Task {
	return &domain.Task{
		ID:             uuid.New(),
		ChannelID:      channel,
		Status:         status,
		Priority:       priority,
		CreatedAt:      created,
		StepCompletion: datatypes.JSON("{}"),
	}
}

func TestClaimNextPrefersHighPriority(t *testing.T) {
	now := time.Now()
	high := taskReadyFor(domain.StatusQueued, domain.PriorityHigh, uuid.New(), now)
	normal := taskReadyFor(domain.StatusQueued, domain.PriorityNormal, uuid.New(), now.Add(-time.Hour))

	repo := &fakeTaskRepo{candidates: []*domain.Task{normal, high}}
	gov := governor.New(nil)
	s := New(repo, gov, testLogger(t))

	task, err := s.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if task == nil || task.ID != high.ID {
		t.Fatalf("ClaimNext: want high-priority task chosen first, got=%v", task)
	}
}

func TestClaimNextSkipsSaturatedClass(t *testing.T) {
	task := taskReadyFor(domain.StatusQueued, domain.PriorityNormal, uuid.New(), time.Now())
	repo := &fakeTaskRepo{candidates: []*domain.Task{task}}
	gov := governor.New(map[governor.Class]int{governor.ClassAssets: 1})
	// Saturate the assets class before the Scheduler tries to admit.
	gov.Admit(governor.ClassAssets)

	s := New(repo, gov, testLogger(t))
	got, err := s.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if got != nil {
		t.Fatalf("ClaimNext with saturated class: want nil, got=%v", got)
	}
}

func TestClaimNextSkipsBackedOffClass(t *testing.T) {
	task := taskReadyFor(domain.StatusQueued, domain.PriorityNormal, uuid.New(), time.Now())
	repo := &fakeTaskRepo{candidates: []*domain.Task{task}}
	gov := governor.New(nil)
	gov.BackOff(string(governor.ClassAssets), time.Now().Add(time.Hour))

	s := New(repo, gov, testLogger(t))
	got, err := s.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if got != nil {
		t.Fatalf("ClaimNext with backed-off class: want nil, got=%v", got)
	}
}

func TestClaimNextReturnsNilWhenNoCandidates(t *testing.T) {
	repo := &fakeTaskRepo{candidates: nil}
	s := New(repo, governor.New(nil), testLogger(t))
	got, err := s.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if got != nil {
		t.Fatalf("ClaimNext with no candidates: want nil, got=%v", got)
	}
}

func TestClaimNextSkipsTasksWithNoNextStatus(t *testing.T) {
	stuck := taskReadyFor(domain.StatusDraft, domain.PriorityHigh, uuid.New(), time.Now())
	repo := &fakeTaskRepo{candidates: []*domain.Task{stuck}}
	s := New(repo, governor.New(nil), testLogger(t))
	got, err := s.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if got != nil {
		t.Fatalf("ClaimNext for a status with no next generating status: want nil, got=%v", got)
	}
}

func TestReorderForFairnessDemotesRecentlyClaimedChannel(t *testing.T) {
	now := time.Now()
	channelA := uuid.New()
	channelB := uuid.New()
	taskA := taskReadyFor(domain.StatusQueued, domain.PriorityNormal, channelA, now)
	taskB := taskReadyFor(domain.StatusQueued, domain.PriorityNormal, channelB, now)

	s := New(&fakeTaskRepo{}, governor.New(nil), testLogger(t))
	s.noteClaim(channelA)

	ordered := s.reorderForFairness([]*domain.Task{taskA, taskB})
	if ordered[0].ChannelID != channelB {
		t.Fatalf("reorderForFairness: want channel B first (not recently claimed), got channel=%v", ordered[0].ChannelID)
	}
}
