package ledger

import (
	"reflect"
	"testing"

	"gorm.io/datatypes"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
)

func TestDecodeEmptyColumnYieldsEmptyLedger(t *testing.T) {
	l, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if l == nil || len(l) != 0 {
		t.Fatalf("Decode(nil): want empty non-nil ledger, got=%v", l)
	}

	l2, err := Decode(datatypes.JSON{})
	if err != nil {
		t.Fatalf("Decode(empty): %v", err)
	}
	if l2 == nil || len(l2) != 0 {
		t.Fatalf("Decode(empty): want empty non-nil ledger, got=%v", l2)
	}
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	if _, err := Decode(datatypes.JSON(`not json`)); err == nil {
		t.Fatalf("Decode(invalid json): expected error, got nil")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	l := Ledger{}
	sl := l.Stage(domain.StageVideo)
	sl.MarkDone(1)
	sl.MarkDone(3)
	sl.Completed = true
	sl.DurationS = 12.5

	raw, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := decoded.Stage(domain.StageVideo)
	if !got.Completed || got.DurationS != 12.5 {
		t.Fatalf("round-trip mismatch: want completed=true duration=12.5, got completed=%v duration=%v", got.Completed, got.DurationS)
	}
	if !got.IsDone(1) || !got.IsDone(3) || got.IsDone(2) {
		t.Fatalf("round-trip Done mismatch: got=%v", got.Done)
	}
}

func TestStageCreatesEmptyEntryOnFirstAccess(t *testing.T) {
	l := Ledger{}
	sl := l.Stage(domain.StageAudio)
	if sl == nil {
		t.Fatalf("Stage: want non-nil StageLedger")
	}
	if _, ok := l[domain.StageAudio]; !ok {
		t.Fatalf("Stage: expected entry to be stored in the map")
	}
	// Same stage returns the same pointer, not a fresh one.
	if l.Stage(domain.StageAudio) != sl {
		t.Fatalf("Stage: expected idempotent pointer for repeated access")
	}
}

func TestMarkDoneAndIsDone(t *testing.T) {
	sl := &StageLedger{}
	if sl.IsDone(1) {
		t.Fatalf("IsDone before MarkDone: want=false got=true")
	}
	sl.MarkDone(1)
	if !sl.IsDone(1) {
		t.Fatalf("IsDone after MarkDone: want=true got=false")
	}
	if sl.IsDone(2) {
		t.Fatalf("IsDone for untouched index: want=false got=true")
	}
}

func TestIsDoneNilReceiverAndNilMap(t *testing.T) {
	var sl *StageLedger
	if sl.IsDone(1) {
		t.Fatalf("IsDone on nil *StageLedger: want=false got=true")
	}
	empty := &StageLedger{}
	if empty.IsDone(1) {
		t.Fatalf("IsDone with nil Done map: want=false got=true")
	}
}

func TestPendingReturnsOutstandingIndices(t *testing.T) {
	sl := &StageLedger{}
	sl.MarkDone(2)
	sl.MarkDone(4)
	got := sl.Pending(5)
	want := []int{1, 3, 5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Pending: want=%v got=%v", want, got)
	}
}

func TestPendingEmptyWhenAllDone(t *testing.T) {
	sl := &StageLedger{}
	sl.MarkDone(1)
	sl.MarkDone(2)
	got := sl.Pending(2)
	if len(got) != 0 {
		t.Fatalf("Pending when fully complete: want empty, got=%v", got)
	}
}

func TestApplyRejectionResetsOnlyNamedIndices(t *testing.T) {
	sl := &StageLedger{}
	sl.MarkDone(1)
	sl.MarkDone(2)
	sl.MarkDone(3)
	sl.Completed = true

	sl.ApplyRejection([]int{2, 3})

	if sl.Completed {
		t.Fatalf("ApplyRejection: expected Completed reset to false")
	}
	if !sl.IsDone(1) {
		t.Fatalf("ApplyRejection: index 1 should remain done")
	}
	if sl.IsDone(2) {
		t.Fatalf("ApplyRejection: index 2 should be reset")
	}
	if sl.IsDone(3) {
		t.Fatalf("ApplyRejection: index 3 should be reset")
	}
	if !reflect.DeepEqual(sl.FailedIndices, []int{2, 3}) {
		t.Fatalf("FailedIndices: want=%v got=%v", []int{2, 3}, sl.FailedIndices)
	}
}

func TestApplyRejectionAppliedIndependentlyPerStage(t *testing.T) {
	l := Ledger{}
	audio := l.Stage(domain.StageAudio)
	audio.MarkDone(5)
	audio.MarkDone(12)
	sfx := l.Stage(domain.StageSFX)
	sfx.MarkDone(7)
	sfx.MarkDone(9)
	sfx.MarkDone(15)

	audio.ApplyRejection([]int{5, 12})
	sfx.ApplyRejection([]int{7, 9, 15})

	if audio.IsDone(5) || audio.IsDone(12) {
		t.Fatalf("expected narration indices 5 and 12 reset, got=%v", audio.Done)
	}
	if sfx.IsDone(7) || sfx.IsDone(9) || sfx.IsDone(15) {
		t.Fatalf("expected sfx indices 7, 9 and 15 reset, got=%v", sfx.Done)
	}
}

func TestClearFailureAnnotations(t *testing.T) {
	sl := &StageLedger{FailedIndices: []int{1, 2}}
	sl.ClearFailureAnnotations()
	if sl.FailedIndices != nil {
		t.Fatalf("ClearFailureAnnotations: want nil, got=%v", sl.FailedIndices)
	}
}
