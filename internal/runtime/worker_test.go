package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/governor"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/orchestrator"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/stagedriver"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/store"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

type fakeTaskRepo struct {
	store.TaskRepo

	errors     []string
	byID       map[uuid.UUID]*domain.Task
	heartbeats int
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{byID: map[uuid.UUID]*domain.Task{}}
}

func (f *fakeTaskRepo) AppendError(dbc dbctx.Context, id uuid.UUID, text string) error {
	f.errors = append(f.errors, text)
	return nil
}

func (f *fakeTaskRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	f.heartbeats++
	return nil
}

func (f *fakeTaskRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Task, error) {
	return f.byID[id], nil
}

func TestCurrentStageResolvesGeneratingStatus(t *testing.T) {
	stage, err := currentStage(domain.StatusGeneratingAssets)
	if err != nil {
		t.Fatalf("currentStage: %v", err)
	}
	if stage != domain.StageAssets {
		t.Fatalf("currentStage: want=%q got=%q", domain.StageAssets, stage)
	}
}

func TestCurrentStageRejectsNonGeneratingStatus(t *testing.T) {
	if _, err := currentStage(domain.StatusDraft); err == nil {
		t.Fatalf("currentStage(draft): expected error, got nil")
	}
}

func TestExecuteSkipsWhenStageUnresolvable(t *testing.T) {
	repo := newFakeTaskRepo()
	driver := stagedriver.New(testLogger(t), t.TempDir(), map[domain.Stage]stagedriver.Spec{})
	orch := orchestrator.New(repo, driver, governor.New(nil), testLogger(t))
	counts := func(t *domain.Task, s domain.Stage) (int, error) { return 1, nil }

	w := NewWorker(testLogger(t), repo, nil, orch, governor.New(nil), nil, counts)
	task := &domain.Task{ID: uuid.New(), Status: domain.StatusDraft}

	w.execute(context.Background(), 1, task)
	if repo.heartbeats != 0 {
		t.Fatalf("expected no heartbeat for an unresolvable stage, got=%d", repo.heartbeats)
	}
}

func TestExecuteRecoversFromOrchestratorPanic(t *testing.T) {
	repo := newFakeTaskRepo()
	driver := stagedriver.New(testLogger(t), t.TempDir(), map[domain.Stage]stagedriver.Spec{})
	orch := orchestrator.New(repo, driver, governor.New(nil), testLogger(t))
	counts := func(t *domain.Task, s domain.Stage) (int, error) { panic("boom") }

	w := NewWorker(testLogger(t), repo, nil, orch, governor.New(nil), nil, counts)
	task := &domain.Task{ID: uuid.New(), Status: domain.StatusGeneratingAssets}

	w.execute(context.Background(), 1, task)
	if len(repo.errors) != 1 {
		t.Fatalf("expected the panic to be recovered and logged, got errors=%v", repo.errors)
	}
}

func TestReloadGovernorCapsAppliesEnvOverrides(t *testing.T) {
	t.Setenv("GOVERNOR_MAX_ASSETS", "3")
	gov := governor.New(nil)
	w := NewWorker(testLogger(t), newFakeTaskRepo(), nil, nil, gov, nil, nil)
	w.ReloadGovernorCaps()

	if cap := gov.Cap(governor.ClassAssets); cap != 3 {
		t.Fatalf("ReloadGovernorCaps: want assets cap=3 got=%d", cap)
	}
}

func TestStartHeartbeatFiresOnTicksAndStops(t *testing.T) {
	repo := newFakeTaskRepo()
	w := &Worker{log: testLogger(t), tasks: repo, heartbeatInterval: 5 * time.Millisecond}

	stop := w.startHeartbeat(context.Background(), uuid.New())
	time.Sleep(20 * time.Millisecond)
	stop()

	if repo.heartbeats == 0 {
		t.Fatalf("expected at least one heartbeat before stop")
	}
}
