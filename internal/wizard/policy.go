package wizard

import "affiliate-signup/internal/submission"

// ProceedPolicy decides whether a failed submission blocks the signup.
type ProceedPolicy interface {
	// AfterStage is consulted after Stage A and Stage B.
	AfterStage(outcome submission.Outcome) bool
	// AfterFinal is consulted after the final submission; true shows the confirmation.
	AfterFinal(err error) bool
}

// AlwaysProceed never blocks. Failures are only logged.
type AlwaysProceed struct{}

func (AlwaysProceed) AfterStage(submission.Outcome) bool { return true }
func (AlwaysProceed) AfterFinal(error) bool              { return true }

// Strict lets staging failures through, since the final request falls back to
// the one-shot path, but keeps the user on the last page when the final
// submission fails.
type Strict struct{}

func (Strict) AfterStage(submission.Outcome) bool { return true }
func (Strict) AfterFinal(err error) bool          { return err == nil }
