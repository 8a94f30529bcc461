package stagedriver

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/apierr"
)

// ManifestClip is one beat's worth of assembled material, in script
// order. The assembly tool reads a Manifest from disk instead of
// receiving each path as a separate argv flag, since a task's clip
// count varies per script (spec.md §6.1).
type ManifestClip struct {
	ClipNumber        int     `json:"clip_number"`
	VideoPath         string  `json:"video_path"`
	NarrationPath     string  `json:"narration_path"`
	SFXPath           string  `json:"sfx_path,omitempty"`
	NarrationDuration float64 `json:"narration_duration"`
}

// Manifest is the assembly stage's complete input: every clip the
// final render stitches together, in order.
type Manifest struct {
	Clips []ManifestClip `json:"clips"`
}

// WriteManifest serializes m to path as pretty-printed JSON, the shape
// the external assembly tool parses before it starts rendering.
func WriteManifest(path string, m Manifest) error {
	if len(m.Clips) == 0 {
		return apierr.New(apierr.KindBadInput, fmt.Errorf("manifest has no clips"))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}

// BuildManifestPath derives the manifest's path from the assembly
// stage's resolved output path, keeping it alongside the final render
// in the same task-scoped directory.
func BuildManifestPath(outputPath string) string {
	return outputPath + ".manifest.json"
}
