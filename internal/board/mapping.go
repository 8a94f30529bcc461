package board

import "github.com/franaraujo77/ai-video-generator-sub001/internal/domain"

// StatusToBoard is the fixed board-status-name <-> core-Status table
// (spec.md §4.7 "a fixed mapping table, not a free-text passthrough").
// Internal statuses with no board-facing equivalent (e.g. the
// generating_ busy states, which the board shows as a single
// "In Progress" regardless of which stage) collapse onto one board name.
var StatusToBoard = map[domain.Status]string{
	domain.StatusDraft:   "Draft",
	domain.StatusQueued:  "Queued",
	domain.StatusClaimed: "In Progress",

	domain.StatusGeneratingAssets:     "In Progress",
	domain.StatusAssetsReady:          "Review: Assets",
	domain.StatusAssetsApproved:       "In Progress",
	domain.StatusAssetError:           "Error",

	domain.StatusGeneratingComposites: "In Progress",
	domain.StatusCompositesReady:      "In Progress",
	domain.StatusCompositesApproved:   "In Progress",
	domain.StatusCompositeError:       "Error",

	domain.StatusGeneratingVideo: "In Progress",
	domain.StatusVideoReady:      "Review: Video",
	domain.StatusVideoApproved:   "In Progress",
	domain.StatusVideoError:      "Error",

	domain.StatusGeneratingAudio: "In Progress",
	domain.StatusAudioReady:      "Review: Audio",
	domain.StatusAudioApproved:   "In Progress",
	domain.StatusAudioError:      "Error",

	domain.StatusGeneratingSFX: "In Progress",
	domain.StatusSFXReady:      "Review: SFX",
	domain.StatusSFXApproved:   "In Progress",
	domain.StatusSFXError:      "Error",

	domain.StatusGeneratingAssembly: "In Progress",
	domain.StatusFinalReview:        "Review: Final",
	domain.StatusAssemblyError:      "Error",

	domain.StatusApproved:    "Approved",
	domain.StatusUploading:   "Uploading",
	domain.StatusUploadError: "Error",
	domain.StatusPublished:   "Published",
	domain.StatusRetry:       "Queued",
}

// BoardToGate maps a board review-column name onto the core gate status
// it corresponds to, for the inbound poll loop to recognize an approval
// or rejection as belonging to a specific stage.
var BoardToGate = map[string]domain.Status{
	"Review: Assets": domain.StatusAssetsReady,
	"Review: Video":  domain.StatusVideoReady,
	"Review: Audio":  domain.StatusAudioReady,
	"Review: SFX":    domain.StatusSFXReady,
	"Review: Final":  domain.StatusFinalReview,
}

// ApprovalTarget returns the core status a gate status moves to on
// human approval (spec.md §4.6's `ready -> approved` family).
var ApprovalTarget = map[domain.Status]domain.Status{
	domain.StatusAssetsReady: domain.StatusAssetsApproved,
	domain.StatusVideoReady:  domain.StatusVideoApproved,
	domain.StatusAudioReady:  domain.StatusAudioApproved,
	domain.StatusSFXReady:    domain.StatusSFXApproved,
	domain.StatusFinalReview: domain.StatusApproved,
}

// RejectionTarget returns the core error status a gate status moves to
// on human rejection, so feedback can drive a partial regeneration via
// internal/ledger.ApplyRejection.
var RejectionTarget = map[domain.Status]domain.Status{
	domain.StatusAssetsReady: domain.StatusAssetError,
	domain.StatusVideoReady:  domain.StatusVideoError,
	domain.StatusAudioReady:  domain.StatusAudioError,
	domain.StatusSFXReady:    domain.StatusSFXError,
	domain.StatusFinalReview: domain.StatusAssemblyError,
}
