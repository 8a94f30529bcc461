package board

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Feedback is the parsed result of a reviewer's rejection note.
type Feedback struct {
	Narration []int
	SFX       []int
}

// feedbackClauseRe matches one "Label: 1, 2, 3" clause within a
// semicolon-separated rejection note, e.g.
// "Bad narration: 5, 12; Bad SFX: 7, 9, 15".
var feedbackClauseRe = regexp.MustCompile(`(?i)^\s*bad\s+(narration|sfx)\s*:\s*([0-9,\s]+)\s*$`)

// ParseFeedback parses the documented rejection-note grammar: one or
// more semicolon-separated clauses of the form
// "Bad <narration|sfx>: <comma-separated 1-based indices>". Unparsable
// input returns an error rather than a best-effort partial result, so
// the caller can route the Task to an explicit error state with the
// raw text preserved instead of silently mutating the ledger on a
// guess (spec.md §4.7 "unparsable feedback never mutates the ledger").
func ParseFeedback(raw string) (Feedback, error) {
	var fb Feedback
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fb, fmt.Errorf("empty rejection feedback")
	}
	clauses := strings.Split(raw, ";")
	matched := false
	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		m := feedbackClauseRe.FindStringSubmatch(clause)
		if m == nil {
			return Feedback{}, fmt.Errorf("unrecognized feedback clause %q", clause)
		}
		matched = true
		indices, err := parseIndexList(m[2])
		if err != nil {
			return Feedback{}, fmt.Errorf("clause %q: %w", clause, err)
		}
		switch strings.ToLower(m[1]) {
		case "narration":
			fb.Narration = append(fb.Narration, indices...)
		case "sfx":
			fb.SFX = append(fb.SFX, indices...)
		}
	}
	if !matched {
		return Feedback{}, fmt.Errorf("no recognized feedback clauses in %q", raw)
	}
	return fb, nil
}

func parseIndexList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid sub-item index %q", p)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no indices found")
	}
	return out, nil
}
