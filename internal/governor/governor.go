// Package governor is the Concurrency Governor (spec.md §4.4): a
// process-local admission gate that caps how many tasks are
// simultaneously active per resource class, and tracks rate-limit/quota
// back-off windows reported by the Stage Driver so the Fair Scheduler
// stops admitting work into a class known to be throttled.
//
// Grounded on the teacher's worker.go heartbeat/panic-recovery loop
// philosophy of "every exit path must release what it acquired" —
// here expressed as counters released via defer in the caller, never
// inside the Governor itself, so a crash between Admit and Release
// still surfaces as a stuck counter the operator can see rather than
// a silently-corrected one.
package governor

import (
	"sync"
	"time"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
)

// Class groups stages that compete for the same upstream resource.
// Audio and SFX share a class because both ultimately throttle against
// the same narration/TTS and sound-effect provider quotas.
type Class string

const (
	ClassAssets Class = "assets"
	ClassVideo  Class = "video"
	ClassAudio  Class = "audio" // covers StageAudio and StageSFX
)

// ClassOf maps a pipeline stage onto its concurrency class.
func ClassOf(s domain.Stage) Class {
	switch s {
	case domain.StageAssets, domain.StageComposites:
		return ClassAssets
	case domain.StageVideo, domain.StageAssembly:
		return ClassVideo
	case domain.StageAudio, domain.StageSFX:
		return ClassAudio
	default:
		return ClassAssets
	}
}

// DefaultCaps are the out-of-the-box limits from spec.md §4.4.
var DefaultCaps = map[Class]int{
	ClassAssets: 12,
	ClassVideo:  3,
	ClassAudio:  6,
}

type Governor struct {
	mu        sync.Mutex
	caps      map[Class]int
	active    map[Class]int
	backoff   map[string]time.Time // arbitrary provider key -> until
}

func New(caps map[Class]int) *Governor {
	if caps == nil {
		caps = map[Class]int{}
	}
	merged := map[Class]int{}
	for k, v := range DefaultCaps {
		merged[k] = v
	}
	for k, v := range caps {
		merged[k] = v
	}
	return &Governor{
		caps:    merged,
		active:  map[Class]int{},
		backoff: map[string]time.Time{},
	}
}

// SetCaps reloads concurrency caps at runtime (spec.md §4.8, SIGHUP
// reload). In-flight counts are untouched; only future Admit calls see
// the new ceiling.
func (g *Governor) SetCaps(caps map[Class]int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, v := range caps {
		g.caps[k] = v
	}
}

// BackOff records that provider key is throttled until until. Admit
// itself does not consult back-off; callers check BackedOff or
// BackoffUntil for the key before calling Admit.
func (g *Governor) BackOff(key string, until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backoff[key] = until
}

// BackedOff reports whether key is presently inside its back-off
// window.
func (g *Governor) BackedOff(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.backoff[key]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(g.backoff, key)
		return false
	}
	return true
}

// BackoffUntil returns key's current back-off deadline, if any. Used by
// callers that want to sleep until the window clears instead of busy
// polling (the Temporal task-run workflow's WaitUntil).
func (g *Governor) BackoffUntil(key string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.backoff[key]
	if !ok || time.Now().After(until) {
		return time.Time{}, false
	}
	return until, true
}

// Admit attempts to reserve one slot in class c. It returns false
// without mutating state if the class is at its cap. Every true result
// must be matched by exactly one Release(c) call, typically via defer
// at the call site.
func (g *Governor) Admit(c Class) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	limit := g.caps[c]
	if limit <= 0 {
		limit = DefaultCaps[c]
	}
	if g.active[c] >= limit {
		return false
	}
	g.active[c]++
	return true
}

// Release frees one slot in class c. Calling Release more times than
// Admit succeeded for a class is a caller bug; it is clamped at zero
// rather than going negative so a double-release can't manufacture
// spare capacity.
func (g *Governor) Release(c Class) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[c] > 0 {
		g.active[c]--
	}
}

// Cap returns the current ceiling for class c, for callers (the
// cross-worker TokenPool) that need the same limit without taking a
// local admission slot.
func (g *Governor) Cap(c Class) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if limit := g.caps[c]; limit > 0 {
		return limit
	}
	return DefaultCaps[c]
}

// Snapshot returns the current active count and cap per class, for
// metrics/logging.
func (g *Governor) Snapshot() map[Class][2]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[Class][2]int, len(g.caps))
	for c, limit := range g.caps {
		out[c] = [2]int{g.active[c], limit}
	}
	return out
}
