// Package ledger implements the Fingerprint & Resume Ledger (spec.md
// §4.3): the per-Task, per-Stage record of which sub-items are already
// produced, used to decide what a stage execution still has to do.
//
// Mirrors the "persisted state is pure data, the engine is a pure state
// machine over it" split from the teacher's
// internal/jobs/orchestrator/state.go: everything here is a struct that
// round-trips through JSON, with no behavior beyond small deterministic
// helpers. Mutation and persistence are the Orchestrator's job.
package ledger

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
)

// StageLedger is the partial-progress record for one stage of one Task.
type StageLedger struct {
	Completed bool    `json:"completed"`
	DurationS float64 `json:"duration_s"`

	// Done marks sub-item indices verified on storage (file exists and
	// non-empty) by the Stage Driver. Indices are 1-based to match the
	// user-facing "clip 7" language in spec.md's scenarios.
	Done map[int]bool `json:"done,omitempty"`

	// FailedIndices holds the sub-item indices a human rejection flagged
	// for this stage's ledger (spec.md's failed_audio_clip_numbers).
	// Narration and SFX are separate stages with separate ledgers, so a
	// rejection note naming both calls ApplyRejection once per stage;
	// other stages use Done exclusively to decide what is outstanding,
	// reusing Done's absence as "needs regeneration" after a rejection
	// resets the relevant indices (see ApplyRejection).
	FailedIndices []int `json:"failed_indices,omitempty"`
}

// Ledger is the full per-Task Resume Ledger, keyed by stage.
type Ledger map[domain.Stage]*StageLedger

// Decode parses a Task.StepCompletion column into a Ledger. An empty or
// nil column decodes to an empty, non-nil Ledger so callers never need a
// nil check.
func Decode(raw datatypes.JSON) (Ledger, error) {
	l := Ledger{}
	if len(raw) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(raw, &l); err != nil {
		return Ledger{}, err
	}
	if l == nil {
		l = Ledger{}
	}
	return l, nil
}

// Encode serializes the Ledger back to a JSON column value.
func (l Ledger) Encode() (datatypes.JSON, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// Stage returns the StageLedger for s, creating an empty one if absent.
// The Ledger map itself is mutated so callers can chain further writes.
func (l Ledger) Stage(s domain.Stage) *StageLedger {
	if sl, ok := l[s]; ok && sl != nil {
		return sl
	}
	sl := &StageLedger{Done: map[int]bool{}}
	l[s] = sl
	return sl
}

// MarkDone records sub-item idx as complete. Called once per sub-item
// immediately after the Stage Driver verifies its output, never only at
// stage end (spec.md §5 ordering guarantee).
func (sl *StageLedger) MarkDone(idx int) {
	if sl.Done == nil {
		sl.Done = map[int]bool{}
	}
	sl.Done[idx] = true
}

// IsDone reports whether sub-item idx is already recorded complete.
func (sl *StageLedger) IsDone(idx int) bool {
	return sl != nil && sl.Done != nil && sl.Done[idx]
}

// Pending returns the sub-item indices in [1, total] not yet marked
// done, in ascending order. A stage with zero outstanding sub-items
// (fully completed Ledger) returns an empty slice, letting the
// Orchestrator skip execution and transition immediately (spec.md §8
// boundary behavior).
func (sl *StageLedger) Pending(total int) []int {
	out := make([]int, 0, total)
	for i := 1; i <= total; i++ {
		if !sl.IsDone(i) {
			out = append(out, i)
		}
	}
	return out
}

// ApplyRejection resets the given sub-item indices to "not done" so the
// next stage execution regenerates exactly those indices and preserves
// all others (spec.md §4.3, scenario 3). Narration and SFX are distinct
// stages with distinct ledgers, so a rejection note naming both calls
// this once per stage ledger rather than once with two index lists.
func (sl *StageLedger) ApplyRejection(idx []int) {
	if sl.Done == nil {
		sl.Done = map[int]bool{}
	}
	for _, i := range idx {
		delete(sl.Done, i)
	}
	sl.FailedIndices = idx
	sl.Completed = false
}

// ClearFailureAnnotations drops the rejection annotation once the
// regenerated sub-items have been verified and the stage is complete
// again, so a future rejection doesn't inherit stale indices.
func (sl *StageLedger) ClearFailureAnnotations() {
	sl.FailedIndices = nil
}
