package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
)

// ChannelRepo is the read/write surface the Board Synchronizer and
// Stage Driver need for Channel rows: active-channel listing for
// scheduling fairness, and credential lookup for subprocess env
// construction.
type ChannelRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Channel, error)
	ListActive(dbc dbctx.Context) ([]*domain.Channel, error)
	SetEncryptedCredential(dbc dbctx.Context, id uuid.UUID, name string, blob []byte) error
	SetActive(dbc dbctx.Context, id uuid.UUID, active bool) error
	ApplyDefaults(dbc dbctx.Context, id uuid.UUID, patch map[string]interface{}) error
}

type channelRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChannelRepo(db *gorm.DB, baseLog *logger.Logger) ChannelRepo {
	return &channelRepo{db: db, log: baseLog.With("repo", "ChannelRepo")}
}

func (r *channelRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *channelRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Channel, error) {
	var c domain.Channel
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListActive returns every channel eligible to receive new Tasks,
// ordered by priority so callers can build per-channel fairness
// bookkeeping without a second query.
func (r *channelRepo) ListActive(dbc dbctx.Context) ([]*domain.Channel, error) {
	var out []*domain.Channel
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("active = ?", true).
		Order("CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END ASC, display_name ASC").
		Find(&out).Error
	return out, err
}

// SetEncryptedCredential stores a single sealed credential blob by
// name, merging into whatever map already exists rather than replacing
// it wholesale — so rotating one credential never disturbs the others.
func (r *channelRepo) SetEncryptedCredential(dbc dbctx.Context, id uuid.UUID, name string, blob []byte) error {
	base := r.tx(dbc)
	return base.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var c domain.Channel
		if err := txx.Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		if c.EncryptedCredentials == nil {
			c.EncryptedCredentials = map[string][]byte{}
		}
		c.EncryptedCredentials[name] = blob
		return txx.Model(&domain.Channel{}).Where("id = ?", id).Updates(map[string]interface{}{
			"encrypted_credentials": c.EncryptedCredentials,
			"updated_at":            time.Now(),
		}).Error
	})
}

func (r *channelRepo) SetActive(dbc dbctx.Context, id uuid.UUID, active bool) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Channel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"active": active, "updated_at": time.Now()}).Error
}

// ApplyDefaults merges an operator-supplied patch (display name,
// voice, storage strategy, branding paths, priority) onto an existing
// Channel row, used by internal/channelconfig to seed values the board
// itself never carries.
func (r *channelRepo) ApplyDefaults(dbc dbctx.Context, id uuid.UUID, patch map[string]interface{}) error {
	if len(patch) == 0 {
		return nil
	}
	patch["updated_at"] = time.Now()
	return r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Channel{}).
		Where("id = ?", id).
		Updates(patch).Error
}
