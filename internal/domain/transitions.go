package domain

// transitionKey packs a (from, to) pair for set membership checks.
type transitionKey struct {
	From Status
	To   Status
}

// validTransitions is the full state machine from spec.md §4.6: the
// union of normal progression, error, rejection-with-feedback, and
// board-driven transition families. Any (from, to) pair not present
// here is rejected with apierr.KindInvalidTransition by the Task Store.
var validTransitions = buildTransitions()

func buildTransitions() map[transitionKey]bool {
	m := map[transitionKey]bool{}
	add := func(from, to Status) { m[transitionKey{from, to}] = true }

	add(StatusDraft, StatusQueued)
	add(StatusQueued, StatusClaimed)
	add(StatusRetry, StatusClaimed)

	type stageFamily struct {
		generating, ready, approved, errorSt Status
		hasGate                              bool
	}
	families := []stageFamily{
		{StatusGeneratingAssets, StatusAssetsReady, StatusAssetsApproved, StatusAssetError, true},
		{StatusGeneratingComposites, StatusCompositesReady, StatusCompositesApproved, StatusCompositeError, false},
		{StatusGeneratingVideo, StatusVideoReady, StatusVideoApproved, StatusVideoError, true},
		{StatusGeneratingAudio, StatusAudioReady, StatusAudioApproved, StatusAudioError, true},
		{StatusGeneratingSFX, StatusSFXReady, StatusSFXApproved, StatusSFXError, true},
	}

	// claimed/approved-of-previous-stage -> generating_S
	add(StatusClaimed, StatusGeneratingAssets)
	add(StatusAssetsApproved, StatusGeneratingComposites)
	add(StatusCompositesApproved, StatusGeneratingVideo)
	add(StatusVideoApproved, StatusGeneratingAudio)
	add(StatusAudioApproved, StatusGeneratingSFX)
	add(StatusSFXApproved, StatusGeneratingAssembly)

	for _, f := range families {
		add(f.generating, f.ready)     // success
		add(f.generating, f.errorSt)   // permanent failure
		add(f.generating, StatusRetry) // transient failure mid-stage, ledger preserved
		add(f.errorSt, StatusQueued)   // manual retry (or rejection retry)
		add(f.errorSt, StatusRetry)    // scheduler re-entry point
		add(StatusRetry, f.generating) // resume with preserved ledger
		add(f.ready, f.errorSt)        // human rejection with feedback
		if f.hasGate {
			add(f.ready, f.approved) // human approval
		} else {
			// composites has no review gate: completion falls straight
			// through to the next stage's generating_ state.
			add(f.generating, StatusGeneratingVideo)
		}
	}

	// assembly reuses the review-gate pattern via final_review.
	add(StatusGeneratingAssembly, StatusFinalReview)
	add(StatusGeneratingAssembly, StatusAssemblyError)
	add(StatusGeneratingAssembly, StatusRetry)
	add(StatusAssemblyError, StatusQueued)
	add(StatusAssemblyError, StatusRetry)
	add(StatusRetry, StatusGeneratingAssembly)
	add(StatusFinalReview, StatusApproved)
	add(StatusFinalReview, StatusAssemblyError)

	add(StatusApproved, StatusUploading)
	add(StatusUploading, StatusPublished)
	add(StatusUploading, StatusUploadError)
	add(StatusUploadError, StatusQueued)
	add(StatusUploadError, StatusUploading)

	return m
}

// CanTransition reports whether (from, to) is a member of the state
// machine. The Task Store's Transition call uses this before issuing
// the conditional UPDATE.
func CanTransition(from, to Status) bool {
	return validTransitions[transitionKey{from, to}]
}
