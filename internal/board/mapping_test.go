package board

import "github.com/franaraujo77/ai-video-generator-sub001/internal/domain"

import "testing"

func TestBoardToGateTargetsHaveApprovalAndRejectionMappings(t *testing.T) {
	for boardName, gate := range BoardToGate {
		if _, ok := ApprovalTarget[gate]; !ok {
			t.Fatalf("gate %q (board %q) missing from ApprovalTarget", gate, boardName)
		}
		if _, ok := RejectionTarget[gate]; !ok {
			t.Fatalf("gate %q (board %q) missing from RejectionTarget", gate, boardName)
		}
	}
}

func TestApprovalAndRejectionTargetsAreReviewGates(t *testing.T) {
	for gate := range ApprovalTarget {
		if !domain.ReviewGates[gate] {
			t.Fatalf("status %q has an ApprovalTarget entry but is not a review gate", gate)
		}
	}
	for gate := range RejectionTarget {
		if !domain.ReviewGates[gate] {
			t.Fatalf("status %q has a RejectionTarget entry but is not a review gate", gate)
		}
	}
}

func TestApprovalTargetTransitionsAreValid(t *testing.T) {
	for from, to := range ApprovalTarget {
		if !domain.CanTransition(from, to) {
			t.Fatalf("ApprovalTarget says %q -> %q but CanTransition disagrees", from, to)
		}
	}
}

func TestRejectionTargetTransitionsAreValid(t *testing.T) {
	for from, to := range RejectionTarget {
		if !domain.CanTransition(from, to) {
			t.Fatalf("RejectionTarget says %q -> %q but CanTransition disagrees", from, to)
		}
	}
}

func TestStatusToBoardCoversEveryReviewGate(t *testing.T) {
	for gate := range domain.ReviewGates {
		if _, ok := StatusToBoard[gate]; !ok {
			t.Fatalf("review gate %q has no StatusToBoard entry", gate)
		}
	}
}

func TestBoardToGateIsConsistentWithStatusToBoard(t *testing.T) {
	for boardName, gate := range BoardToGate {
		if StatusToBoard[gate] != boardName {
			t.Fatalf("BoardToGate[%q] = %q but StatusToBoard[%q] = %q", boardName, gate, gate, StatusToBoard[gate])
		}
	}
}
