package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Channel is a single managed YouTube channel. Channels are created
// out-of-band (not by this module) and are never cascade-deleted: Tasks
// keep a RESTRICT foreign key so historical runs survive deactivation
// (spec.md §3 invariant 6).
type Channel struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DisplayName string    `gorm:"column:display_name;not null" json:"display_name"`
	Active      bool      `gorm:"column:active;not null;default:true;index" json:"active"`
	Priority    Priority  `gorm:"column:priority;not null;default:normal;index" json:"priority"`

	VoiceID string `gorm:"column:voice_id" json:"voice_id,omitempty"`

	// BrandingAssetPaths holds channel-specific branding inputs (logo,
	// intro/outro clips, lower-third templates) referenced by Stage
	// Driver argv templates at composite/assembly time.
	BrandingAssetPaths []string `gorm:"column:branding_asset_paths;serializer:json" json:"branding_asset_paths,omitempty"`

	// StorageStrategy names where final assets land once assembled
	// (e.g. "local", "gcs"); interpreted only by the board/publish
	// handoff, never by the core itself.
	StorageStrategy string `gorm:"column:storage_strategy" json:"storage_strategy,omitempty"`

	// EncryptedCredentials holds one ciphertext blob per third-party
	// credential name (e.g. "tts_api_key", "board_token"), sealed with
	// crypto.Seal. Never logged; see internal/crypto.
	EncryptedCredentials map[string][]byte `gorm:"column:encrypted_credentials;serializer:json" json:"-"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Channel) TableName() string { return "channel" }

// Priority is the scheduling priority bucket shared by Channel and Task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for the Fair Scheduler (higher rank claims
// first). Unknown values rank as Normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}
