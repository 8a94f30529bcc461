// Package app is the composition root (spec.md §9): it wires logger,
// config, the Postgres connection, repos, the Stage Driver, Governor,
// Fair Scheduler, Orchestrator, Board Synchronizer, and the Worker
// Runtime together, following the build order of the teacher's
// internal/app/app.go (logger -> config -> postgres+automigrate ->
// repos -> services -> ... -> lifecycle methods).
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/board"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/channelconfig"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/crypto"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/governor"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/observability"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/orchestrator"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	platdb "github.com/franaraujo77/ai-video-generator-sub001/internal/platform/db"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/envutil"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/runtime"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/scheduler"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/stagedriver"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/storage"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/store"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/temporalx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/temporalx/temporalworker"
)

type App struct {
	Log    *logger.Logger
	DB     *gorm.DB
	Sealer *crypto.Sealer

	Tasks    store.TaskRepo
	Channels store.ChannelRepo

	Governor     *governor.Governor
	TokenPool    *governor.TokenPool
	Scheduler    *scheduler.Scheduler
	Orchestrator *orchestrator.Orchestrator
	Board        *board.Synchronizer
	Worker       *runtime.Worker
	Storage      storage.Strategy

	tracingShutdown func(context.Context) error

	// TemporalWorker is nil unless RUN_TEMPORAL=true and TEMPORAL_ADDRESS
	// is reachable; the poll-based Worker above is the default execution
	// path either way (spec.md §9 Open Questions).
	TemporalWorker *temporalworker.Runner

	cancel context.CancelFunc
}

// New builds the full dependency graph. Board Synchronizer wiring is
// optional: when BOARD_BASE_URL/BOARD_API_TOKEN are absent the app
// still runs, with the Worker Runtime's board push skipped (useful for
// local development against a manually-seeded Task Store).
func New() (*App, error) {
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracingShutdown := observability.Init(context.Background(), log, "pipeline-worker")

	sealer, err := crypto.NewSealerFromEnv()
	if err != nil {
		log.Warn("credential sealer unavailable, credential-gated stages will fail", "error", err)
	}

	pg, err := platdb.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	gdb := pg.DB()

	tasks := store.NewTaskRepo(gdb, log)
	channels := store.NewChannelRepo(gdb, log)

	channelconfig.Load(log).Seed(log, dbctx.Context{Ctx: context.Background()}, channels)

	tokenPool := governor.NewTokenPool(log)

	gov := governor.New(map[governor.Class]int{
		governor.ClassAssets: envutil.Int("GOVERNOR_MAX_ASSETS", governor.DefaultCaps[governor.ClassAssets]),
		governor.ClassVideo:  envutil.Int("GOVERNOR_MAX_VIDEO", governor.DefaultCaps[governor.ClassVideo]),
		governor.ClassAudio:  envutil.Int("GOVERNOR_MAX_AUDIO", governor.DefaultCaps[governor.ClassAudio]),
	})

	driver := stagedriver.New(log, envutil.String("STAGE_WORK_ROOT", "/var/lib/pipeline/work"), defaultStageSpecs())
	if err := driver.AssertReady(); err != nil {
		log.Warn("stage driver preflight failed; stages will error at execution time", "error", err)
	}

	orch := orchestrator.New(tasks, driver, gov, log).WithTokenPool(tokenPool)

	sched := scheduler.New(tasks, gov, log).WithTokenPool(tokenPool)

	outputStorage := storage.Resolve(envutil.String("OUTPUT_STORAGE_STRATEGY", "local"), log)

	var boardSync *board.Synchronizer
	boardCfg := board.ConfigFromEnv()
	if boardCfg.BaseURL != "" && boardCfg.APIToken != "" {
		client, err := board.New(log, boardCfg)
		if err != nil {
			log.Warn("board client init failed, running without board sync", "error", err)
		} else {
			boardSync = board.NewSynchronizer(client, tasks, channels, log, boardCfg.SyncInterval)
		}
	} else {
		log.Info("BOARD_BASE_URL/BOARD_API_TOKEN not set, running without board sync")
	}

	worker := runtime.NewWorker(log, tasks, sched.ClaimNext, orch, gov, boardSync, defaultSubItemCounter)

	var temporalRunner *temporalworker.Runner
	if envutil.Bool("RUN_TEMPORAL", false) {
		tc, err := temporalx.NewClient(log)
		if err != nil {
			log.Warn("temporal client init failed, running without the Temporal execution substrate", "error", err)
		} else if tc != nil {
			temporalRunner, err = temporalworker.NewRunner(log, tc, tasks, orch, gov, defaultSubItemCounter)
			if err != nil {
				log.Warn("temporal worker init failed, running without the Temporal execution substrate", "error", err)
				temporalRunner = nil
			}
		}
	}

	return &App{
		Log:             log,
		DB:              gdb,
		Sealer:          sealer,
		Tasks:           tasks,
		Channels:        channels,
		Governor:        gov,
		TokenPool:       tokenPool,
		Scheduler:       sched,
		Orchestrator:    orch,
		TemporalWorker:  temporalRunner,
		Board:           boardSync,
		Worker:          worker,
		Storage:         outputStorage,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Start launches the Worker Runtime (claim loop pool + stale reaper)
// and, if configured, the Board Synchronizer's inbound poll loop.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.Worker.Start(ctx)
	if a.Board != nil {
		go a.Board.RunInbound(ctx)
	}
}

// RunUntilSignal starts the app and blocks until SIGTERM/SIGINT, for a
// worker-only process's main function. SIGHUP triggers a Governor cap
// reload from the environment without restarting in-flight stage
// executions (spec.md §4.8); this binary has no HTTP server half to
// fall back on, so shutdown is driven entirely from here.
func (a *App) RunUntilSignal() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	innerCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.Worker.Start(innerCtx)
	if a.Board != nil {
		go a.Board.RunInbound(innerCtx)
	}

	for {
		select {
		case <-ctx.Done():
			a.Log.Info("shutdown signal received, draining in-flight tasks")
			return
		case <-hup:
			a.Worker.ReloadGovernorCaps()
		}
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.TokenPool != nil {
		_ = a.TokenPool.Close()
	}
	if a.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.tracingShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// defaultStageSpecs describes the external tool each stage shells out
// to. Binary names and argv shapes are placeholders for the concrete
// generation providers a deployment plugs in; spec.md §5 treats these
// as configuration, not code.
func defaultStageSpecs() map[domain.Stage]stagedriver.Spec {
	return map[domain.Stage]stagedriver.Spec{
		domain.StageAssets: {
			Stage: domain.StageAssets, Binary: envutil.String("ASSETS_TOOL_BIN", "pipeline-assets-gen"),
			Argv: []string{"--channel", "{channel_id}", "--task", "{task_id}", "--index", "{sub_item}", "--out", "{output_path}"},
		},
		domain.StageComposites: {
			Stage: domain.StageComposites, Binary: envutil.String("COMPOSITES_TOOL_BIN", "ffmpeg"),
			Argv: []string{"-y", "-i", "{output_path}.src", "-c", "copy", "{output_path}"},
		},
		domain.StageVideo: {
			Stage: domain.StageVideo, Binary: envutil.String("VIDEO_TOOL_BIN", "pipeline-video-render"),
			Argv: []string{"--channel", "{channel_id}", "--task", "{task_id}", "--index", "{sub_item}", "--out", "{output_path}"},
		},
		domain.StageAudio: {
			Stage: domain.StageAudio, Binary: envutil.String("NARRATION_TOOL_BIN", "pipeline-tts"),
			Argv: []string{"--channel", "{channel_id}", "--task", "{task_id}", "--index", "{sub_item}", "--out", "{output_path}"},
		},
		domain.StageSFX: {
			Stage: domain.StageSFX, Binary: envutil.String("SFX_TOOL_BIN", "pipeline-sfx-gen"),
			Argv: []string{"--channel", "{channel_id}", "--task", "{task_id}", "--index", "{sub_item}", "--out", "{output_path}"},
		},
		domain.StageAssembly: {
			Stage: domain.StageAssembly, Binary: envutil.String("ASSEMBLY_TOOL_BIN", "pipeline-assembler"),
			Argv: []string{"--manifest", "{manifest_path}", "--out", "{output_path}"},
		},
	}
}

func defaultSubItemCounter(t *domain.Task, stage domain.Stage) (int, error) {
	n := envutil.Int(envVarForStage(stage), 1)
	if n < 1 {
		n = 1
	}
	return n, nil
}

func envVarForStage(stage domain.Stage) string {
	switch stage {
	case domain.StageAssets:
		return "ASSETS_SUBITEMS_DEFAULT"
	case domain.StageComposites:
		return "COMPOSITES_SUBITEMS_DEFAULT"
	case domain.StageVideo:
		return "VIDEO_SUBITEMS_DEFAULT"
	case domain.StageAudio:
		return "AUDIO_SUBITEMS_DEFAULT"
	case domain.StageSFX:
		return "SFX_SUBITEMS_DEFAULT"
	default:
		return "ASSEMBLY_SUBITEMS_DEFAULT"
	}
}
