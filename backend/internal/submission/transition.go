package submission

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lms_core/backend/internal/shared"
)

// TransitionPolicy decides whether a submission may move between statuses.
// Both statuses are already known to be valid.
type TransitionPolicy interface {
	Allow(from, to string) error
}

// Permissive accepts every move between valid statuses
type Permissive struct{}

// Allow implements TransitionPolicy
func (Permissive) Allow(_, _ string) error { return nil }

// Strict only moves forward one step at a time:
// in-progress -> submitted -> graded -> reviewed.
type Strict struct{}

var statusRank = map[string]int{
	shared.SubmissionInProgress: 0,
	shared.SubmissionSubmitted:  1,
	shared.SubmissionGraded:     2,
	shared.SubmissionReviewed:   3,
}

// Allow implements TransitionPolicy
func (Strict) Allow(from, to string) error {
	step := statusRank[to] - statusRank[from]
	if step == 0 || step == 1 {
		return nil
	}
	return status.Errorf(codes.FailedPrecondition, "cannot move submission from %s to %s", from, to)
}

// NewTransitionPolicy returns Strict when strict is set, Permissive otherwise
func NewTransitionPolicy(strict bool) TransitionPolicy {
	if strict {
		return Strict{}
	}
	return Permissive{}
}
