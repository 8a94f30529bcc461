package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status is a Task's position in the pipeline state machine (spec.md
// §4.6). Values are persisted and must stay stable across releases —
// the Board Synchronizer's status-name table maps board strings onto
// exactly these values.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusQueued  Status = "queued"
	StatusClaimed Status = "claimed"

	StatusGeneratingAssets     Status = "generating_assets"
	StatusAssetsReady          Status = "assets_ready"
	StatusAssetsApproved       Status = "assets_approved"
	StatusAssetError           Status = "asset_error"

	StatusGeneratingComposites Status = "generating_composites"
	StatusCompositesReady      Status = "composites_ready"
	StatusCompositesApproved   Status = "composites_approved"
	StatusCompositeError       Status = "composite_error"

	StatusGeneratingVideo Status = "generating_video"
	StatusVideoReady      Status = "video_ready"
	StatusVideoApproved   Status = "video_approved"
	StatusVideoError      Status = "video_error"

	StatusGeneratingAudio Status = "generating_audio"
	StatusAudioReady      Status = "audio_ready"
	StatusAudioApproved   Status = "audio_approved"
	StatusAudioError      Status = "audio_error"

	StatusGeneratingSFX Status = "generating_sfx"
	StatusSFXReady      Status = "sfx_ready"
	StatusSFXApproved   Status = "sfx_approved"
	StatusSFXError      Status = "sfx_error"

	StatusGeneratingAssembly Status = "generating_assembly"
	StatusFinalReview        Status = "final_review"
	StatusAssemblyError      Status = "assembly_error"

	StatusApproved Status = "approved"
	StatusUploading Status = "uploading"
	StatusUploadError Status = "upload_error"
	StatusPublished Status = "published"

	// StatusRetry is the board-independent re-entry point after a
	// transient Stage Driver failure (spec.md §4.6 step 6).
	StatusRetry Status = "retry"
)

// ReviewGates is the hard-coded set of statuses at which the
// Orchestrator must halt and wait for a human decision via the board
// (spec.md §4.6).
var ReviewGates = map[Status]bool{
	StatusAssetsReady: true,
	StatusVideoReady:  true,
	StatusAudioReady:  true,
	StatusSFXReady:    true,
	StatusFinalReview: true,
}

// Stage names a single pipeline phase. Used as a map key in the Resume
// Ledger and as the Stage Driver dispatch key.
type Stage string

const (
	StageAssets     Stage = "assets"
	StageComposites Stage = "composites"
	StageVideo      Stage = "video"
	StageAudio      Stage = "audio"
	StageSFX        Stage = "sfx"
	StageAssembly   Stage = "assembly"
)

// StageOrder is the fixed pipeline sequence (spec.md §2).
var StageOrder = []Stage{StageAssets, StageComposites, StageVideo, StageAudio, StageSFX, StageAssembly}

// Task is one end-to-end unit of work producing one final video; 1:1
// with a page on the external board (spec.md §3).
type Task struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ChannelID uuid.UUID `gorm:"type:uuid;not null;index" json:"channel_id"`

	// BoardPageID is globally unique (spec.md §3 invariant 1); the
	// unique index is the enforcement mechanism upsert_task_from_board
	// relies on to collapse duplicate creation attempts.
	BoardPageID string `gorm:"column:board_page_id;uniqueIndex;not null" json:"board_page_id"`

	Title           string `gorm:"column:title;not null" json:"title"`
	Topic           string `gorm:"column:topic" json:"topic,omitempty"`
	NarrativeDirection string `gorm:"column:narrative_direction" json:"narrative_direction,omitempty"`

	Priority Priority `gorm:"column:priority;not null;default:normal;index" json:"priority"`
	Status   Status   `gorm:"column:status;not null;index" json:"status"`

	// ErrorLog is append-only; entries are timestamp-prefixed text lines
	// (spec.md §3 invariant 3). Never rewritten, only appended to.
	ErrorLog string `gorm:"column:error_log" json:"error_log,omitempty"`

	OutputPath       string  `gorm:"column:output_path" json:"output_path,omitempty"`
	OutputDurationS  float64 `gorm:"column:output_duration_s" json:"output_duration_s,omitempty"`

	Attempts int `gorm:"column:attempts;not null;default:0" json:"attempts"`

	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`

	PipelineStartTime *time.Time `gorm:"column:pipeline_start_time" json:"pipeline_start_time,omitempty"`
	PipelineEndTime   *time.Time `gorm:"column:pipeline_end_time" json:"pipeline_end_time,omitempty"`
	ReviewStartedAt   *time.Time `gorm:"column:review_started_at" json:"review_started_at,omitempty"`
	ReviewCompletedAt *time.Time `gorm:"column:review_completed_at" json:"review_completed_at,omitempty"`

	// PipelineCostUSD is a denormalized running total equal to the sum
	// of this Task's CostEntry rows outside an active transaction
	// (spec.md §3 invariant 5); maintained incrementally by RecordCost.
	PipelineCostUSD float64 `gorm:"column:pipeline_cost_usd;not null;default:0" json:"pipeline_cost_usd"`

	// StepCompletion is the Resume Ledger, JSON-encoded (see
	// internal/ledger). Stored as one column so it is rewritten
	// atomically with Status by Transition/UpdateFieldsUnlessStatus —
	// no intermediate half-ledger state is ever visible to a reader
	// (spec.md §4.3).
	StepCompletion datatypes.JSON `gorm:"column:step_completion;type:jsonb" json:"step_completion"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Task) TableName() string { return "task" }

// IsReviewGate reports whether t.Status is one of the hard-coded review
// gate statuses.
func (t *Task) IsReviewGate() bool {
	if t == nil {
		return false
	}
	return ReviewGates[t.Status]
}

// generatingStatusStage maps each generating_ status to the stage it
// executes. Shared by the Fair Scheduler (to resolve a candidate's
// target concurrency class before claiming) and the Worker Runtime (to
// resolve the stage of an already-claimed Task).
var generatingStatusStage = map[Status]Stage{
	StatusGeneratingAssets:     StageAssets,
	StatusGeneratingComposites: StageComposites,
	StatusGeneratingVideo:      StageVideo,
	StatusGeneratingAudio:      StageAudio,
	StatusGeneratingSFX:        StageSFX,
	StatusGeneratingAssembly:   StageAssembly,
}

// StageForGeneratingStatus returns the Stage a generating_ status
// executes, or ("", false) if status is not one of the generating_
// statuses.
func StageForGeneratingStatus(status Status) (Stage, bool) {
	s, ok := generatingStatusStage[status]
	return s, ok
}

// CostEntry is an append-only child record of Task (spec.md §3).
type CostEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TaskID    uuid.UUID `gorm:"type:uuid;not null;index" json:"task_id"`
	Stage     Stage     `gorm:"column:stage;not null" json:"stage"`
	AmountUSD float64   `gorm:"column:amount_usd;not null" json:"amount_usd"`
	Units     int       `gorm:"column:units;not null;default:1" json:"units"`
	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (CostEntry) TableName() string { return "cost_entry" }
