// Package channelconfig loads the static, operator-edited per-channel
// defaults (voice, storage strategy, branding assets) that seed a new
// Channel row before the board ever mentions it. Grounded on the
// teacher's internal/jobs/pipeline/learning_build/spec.go: a
// gopkg.in/yaml.v3 document read from a path named by an environment
// variable, falling back to an empty document (no per-channel
// defaults) when the file is absent or fails to parse, so a missing
// config file degrades to
// "configure channels by hand" rather than a startup failure.
package channelconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/envutil"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/store"
	"github.com/google/uuid"
)

const configPathEnv = "CHANNEL_CONFIG_YAML"

// Defaults is one channel's seed configuration, keyed by the board's
// channel identifier in the YAML document.
type Defaults struct {
	DisplayName        string   `yaml:"display_name"`
	Priority           string   `yaml:"priority"`
	VoiceID            string   `yaml:"voice_id"`
	StorageStrategy    string   `yaml:"storage_strategy"`
	BrandingAssetPaths []string `yaml:"branding_asset_paths"`
}

// Document is the top-level shape of the YAML file: a map from channel
// id to its Defaults.
type Document struct {
	Channels map[string]Defaults `yaml:"channels"`
}

var fallback = Document{
	Channels: map[string]Defaults{},
}

// Load reads CHANNEL_CONFIG_YAML, if set, and parses it into a
// Document. A missing env var, missing file, or parse error all yield
// the empty fallback document plus a warning log rather than an error:
// channels can still be created from board data alone.
func Load(log *logger.Logger) Document {
	path := envutil.String(configPathEnv, "")
	if path == "" {
		return fallback
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn("channel config file unreadable, using built-in defaults", "path", path, "error", err)
		return fallback
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		log.Warn("channel config file invalid YAML, using built-in defaults", "path", path, "error", err)
		return fallback
	}
	if doc.Channels == nil {
		doc.Channels = map[string]Defaults{}
	}
	return doc
}

// patch turns one Defaults entry into a ChannelRepo.ApplyDefaults
// update map, omitting fields the document doesn't set.
func (def Defaults) patch() (map[string]interface{}, error) {
	patch := map[string]interface{}{}
	if def.DisplayName != "" {
		patch["display_name"] = def.DisplayName
	}
	if def.VoiceID != "" {
		patch["voice_id"] = def.VoiceID
	}
	if def.StorageStrategy != "" {
		patch["storage_strategy"] = def.StorageStrategy
	}
	if len(def.BrandingAssetPaths) > 0 {
		patch["branding_asset_paths"] = def.BrandingAssetPaths
	}
	if def.Priority != "" {
		switch domain.Priority(def.Priority) {
		case domain.PriorityHigh, domain.PriorityNormal, domain.PriorityLow:
			patch["priority"] = def.Priority
		default:
			return nil, fmt.Errorf("unknown priority %q", def.Priority)
		}
	}
	return patch, nil
}

// Seed applies every channel entry in the document to its
// already-existing Channel row, keyed by the channel's UUID primary
// key. Entries naming a channel id that doesn't exist yet are skipped
// with a warning rather than failing the whole seed pass, since
// channels are created out-of-band and a config file may list one
// before it has been provisioned.
func (d Document) Seed(log *logger.Logger, dbc dbctx.Context, repo store.ChannelRepo) {
	for rawID, def := range d.Channels {
		id, err := uuid.Parse(rawID)
		if err != nil {
			log.Warn("channel config entry has invalid uuid key, skipping", "key", rawID, "error", err)
			continue
		}
		patch, err := def.patch()
		if err != nil {
			log.Warn("channel config entry invalid, skipping", "channel_id", id, "error", err)
			continue
		}
		if len(patch) == 0 {
			continue
		}
		if err := repo.ApplyDefaults(dbc, id, patch); err != nil {
			log.Warn("failed to apply channel config defaults", "channel_id", id, "error", err)
		}
	}
}
