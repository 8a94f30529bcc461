package board

import (
	"reflect"
	"testing"
)

func TestParseFeedbackSingleClause(t *testing.T) {
	fb, err := ParseFeedback("Bad narration: 5, 12")
	if err != nil {
		t.Fatalf("ParseFeedback: %v", err)
	}
	if !reflect.DeepEqual(fb.Narration, []int{5, 12}) {
		t.Fatalf("Narration: want=%v got=%v", []int{5, 12}, fb.Narration)
	}
	if len(fb.SFX) != 0 {
		t.Fatalf("SFX: want empty, got=%v", fb.SFX)
	}
}

func TestParseFeedbackMultipleClauses(t *testing.T) {
	fb, err := ParseFeedback("Bad narration: 5, 12; Bad SFX: 7, 9, 15")
	if err != nil {
		t.Fatalf("ParseFeedback: %v", err)
	}
	if !reflect.DeepEqual(fb.Narration, []int{5, 12}) {
		t.Fatalf("Narration: want=%v got=%v", []int{5, 12}, fb.Narration)
	}
	if !reflect.DeepEqual(fb.SFX, []int{7, 9, 15}) {
		t.Fatalf("SFX: want=%v got=%v", []int{7, 9, 15}, fb.SFX)
	}
}

func TestParseFeedbackIsCaseInsensitive(t *testing.T) {
	fb, err := ParseFeedback("bad NARRATION: 1")
	if err != nil {
		t.Fatalf("ParseFeedback: %v", err)
	}
	if !reflect.DeepEqual(fb.Narration, []int{1}) {
		t.Fatalf("Narration: want=%v got=%v", []int{1}, fb.Narration)
	}
}

func TestParseFeedbackAccumulatesRepeatedLabel(t *testing.T) {
	fb, err := ParseFeedback("Bad narration: 1; Bad narration: 2")
	if err != nil {
		t.Fatalf("ParseFeedback: %v", err)
	}
	if !reflect.DeepEqual(fb.Narration, []int{1, 2}) {
		t.Fatalf("Narration: want=%v got=%v", []int{1, 2}, fb.Narration)
	}
}

func TestParseFeedbackEmptyInput(t *testing.T) {
	if _, err := ParseFeedback(""); err == nil {
		t.Fatalf("ParseFeedback(\"\"): expected error, got nil")
	}
	if _, err := ParseFeedback("   "); err == nil {
		t.Fatalf("ParseFeedback(whitespace): expected error, got nil")
	}
}

func TestParseFeedbackUnrecognizedLabel(t *testing.T) {
	if _, err := ParseFeedback("Bad lighting: 1, 2"); err == nil {
		t.Fatalf("ParseFeedback(unrecognized label): expected error, got nil")
	}
}

func TestParseFeedbackMalformedClause(t *testing.T) {
	if _, err := ParseFeedback("narration is bad everywhere"); err == nil {
		t.Fatalf("ParseFeedback(free text): expected error, got nil")
	}
}

func TestParseFeedbackRejectsZeroAndNegativeIndices(t *testing.T) {
	if _, err := ParseFeedback("Bad narration: 0"); err == nil {
		t.Fatalf("ParseFeedback(index 0): expected error, got nil")
	}
	if _, err := ParseFeedback("Bad narration: -1"); err == nil {
		t.Fatalf("ParseFeedback(negative index): expected error, got nil")
	}
}

func TestParseFeedbackRejectsEmptyIndexList(t *testing.T) {
	if _, err := ParseFeedback("Bad narration: "); err == nil {
		t.Fatalf("ParseFeedback(empty index list): expected error, got nil")
	}
}

func TestParseFeedbackTrimsWhitespaceAroundClauses(t *testing.T) {
	fb, err := ParseFeedback("  Bad narration: 3 ;  Bad sfx: 4  ")
	if err != nil {
		t.Fatalf("ParseFeedback: %v", err)
	}
	if !reflect.DeepEqual(fb.Narration, []int{3}) {
		t.Fatalf("Narration: want=%v got=%v", []int{3}, fb.Narration)
	}
	if !reflect.DeepEqual(fb.SFX, []int{4}) {
		t.Fatalf("SFX: want=%v got=%v", []int{4}, fb.SFX)
	}
}
