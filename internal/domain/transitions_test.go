package domain

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	steps := []struct{ from, to Status }{
		{StatusDraft, StatusQueued},
		{StatusQueued, StatusClaimed},
		{StatusClaimed, StatusGeneratingAssets},
		{StatusGeneratingAssets, StatusAssetsReady},
		{StatusAssetsReady, StatusAssetsApproved},
		{StatusAssetsApproved, StatusGeneratingComposites},
		{StatusGeneratingComposites, StatusGeneratingVideo},
		{StatusGeneratingVideo, StatusVideoReady},
		{StatusVideoReady, StatusVideoApproved},
		{StatusVideoApproved, StatusGeneratingAudio},
		{StatusGeneratingAudio, StatusAudioReady},
		{StatusAudioReady, StatusAudioApproved},
		{StatusAudioApproved, StatusGeneratingSFX},
		{StatusGeneratingSFX, StatusSFXReady},
		{StatusSFXReady, StatusSFXApproved},
		{StatusSFXApproved, StatusGeneratingAssembly},
		{StatusGeneratingAssembly, StatusFinalReview},
		{StatusFinalReview, StatusApproved},
		{StatusApproved, StatusUploading},
		{StatusUploading, StatusPublished},
	}
	for _, s := range steps {
		if !CanTransition(s.from, s.to) {
			t.Fatalf("CanTransition(%q, %q): want=true got=false", s.from, s.to)
		}
	}
}

func TestCanTransitionErrorAndRetryFamily(t *testing.T) {
	steps := []struct{ from, to Status }{
		{StatusGeneratingAssets, StatusAssetError},
		{StatusAssetError, StatusQueued},
		{StatusAssetError, StatusRetry},
		{StatusRetry, StatusGeneratingAssets},
		{StatusRetry, StatusClaimed},
		{StatusAssemblyError, StatusQueued},
		{StatusAssemblyError, StatusRetry},
		{StatusRetry, StatusGeneratingAssembly},
		{StatusUploadError, StatusQueued},
		{StatusUploadError, StatusUploading},
	}
	for _, s := range steps {
		if !CanTransition(s.from, s.to) {
			t.Fatalf("CanTransition(%q, %q): want=true got=false", s.from, s.to)
		}
	}
}

func TestCanTransitionRejectionWithFeedback(t *testing.T) {
	gates := []struct{ ready, errorSt Status }{
		{StatusAssetsReady, StatusAssetError},
		{StatusVideoReady, StatusVideoError},
		{StatusAudioReady, StatusAudioError},
		{StatusSFXReady, StatusSFXError},
		{StatusFinalReview, StatusAssemblyError},
	}
	for _, g := range gates {
		if !CanTransition(g.ready, g.errorSt) {
			t.Fatalf("CanTransition(%q, %q): want=true got=false", g.ready, g.errorSt)
		}
	}
}

func TestCanTransitionRejectsInvalidPairs(t *testing.T) {
	invalid := []struct{ from, to Status }{
		{StatusDraft, StatusPublished},
		{StatusQueued, StatusGeneratingAssets},
		{StatusAssetsReady, StatusGeneratingVideo},
		{StatusPublished, StatusQueued},
		{StatusGeneratingVideo, StatusGeneratingAssets},
		{StatusDraft, StatusDraft},
		{StatusAssetsApproved, StatusGeneratingVideo},
		{StatusCompositesReady, StatusCompositesApproved},
	}
	for _, s := range invalid {
		if CanTransition(s.from, s.to) {
			t.Fatalf("CanTransition(%q, %q): want=false got=true", s.from, s.to)
		}
	}
}

func TestCanTransitionRejectsUnknownStatus(t *testing.T) {
	if CanTransition(Status("bogus"), StatusQueued) {
		t.Fatalf("CanTransition with unknown from-status: want=false got=true")
	}
	if CanTransition(StatusDraft, Status("bogus")) {
		t.Fatalf("CanTransition with unknown to-status: want=false got=true")
	}
}

func TestStageForGeneratingStatus(t *testing.T) {
	cases := []struct {
		status Status
		stage  Stage
	}{
		{StatusGeneratingAssets, StageAssets},
		{StatusGeneratingComposites, StageComposites},
		{StatusGeneratingVideo, StageVideo},
		{StatusGeneratingAudio, StageAudio},
		{StatusGeneratingSFX, StageSFX},
		{StatusGeneratingAssembly, StageAssembly},
	}
	for _, c := range cases {
		stage, ok := StageForGeneratingStatus(c.status)
		if !ok {
			t.Fatalf("StageForGeneratingStatus(%q): want ok=true got=false", c.status)
		}
		if stage != c.stage {
			t.Fatalf("StageForGeneratingStatus(%q): want=%q got=%q", c.status, c.stage, stage)
		}
	}

	if _, ok := StageForGeneratingStatus(StatusDraft); ok {
		t.Fatalf("StageForGeneratingStatus(StatusDraft): want ok=false got=true")
	}
}

func TestIsReviewGate(t *testing.T) {
	task := &Task{Status: StatusAssetsReady}
	if !task.IsReviewGate() {
		t.Fatalf("IsReviewGate: want=true got=false")
	}
	task.Status = StatusGeneratingAssets
	if task.IsReviewGate() {
		t.Fatalf("IsReviewGate: want=false got=true")
	}
	var nilTask *Task
	if nilTask.IsReviewGate() {
		t.Fatalf("IsReviewGate on nil task: want=false got=true")
	}
}
